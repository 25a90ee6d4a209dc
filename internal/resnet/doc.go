// Package resnet builds pre-activation residual networks for 32×32 RGB
// inputs (He et al., "Identity Mappings in Deep Residual Networks").
//
// A network is a stem convolution, three stages of pre-activation blocks
// (16, 32 and 64 channels; strides 1, 2, 2), a closing BatchNorm and ReLU,
// 8×8 average pooling and a linear classifier:
//
//	backend := cpu.New()
//	net, err := resnet.PreActResNet20("CIFAR10", backend, resnet.WithSeed(1))
//	if err != nil {
//	    return err
//	}
//	logits := net.Forward(images) // [N, 3, 32, 32] -> [N, 10]
//
// Parameter names follow the PyTorch state_dict layout ("conv1.weight",
// "layer2.0.shortcut.0.weight", "last_act.0.running_var", "linear.bias").
package resnet
