// Package serialization reads and writes state dictionaries in the
// SafeTensors format.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}]
//	  [Tensor data: raw little-endian bytes, tensors in name order]
//
// The optional "__metadata__" header entry carries string key/value pairs.
// The writer stores a SHA-256 of the data section under "sha256" and the
// reader verifies it when present.
//
// Example usage:
//
//	// Save a network's parameters and BatchNorm buffers
//	err := serialization.WriteSafeTensors("model.safetensors", net.StateDict(), map[string]string{
//	    "architecture": "preactresnet20",
//	})
//
//	// Load them back
//	file, err := serialization.ReadSafeTensors("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stateDict, err := file.StateDict(tensor.CPU)
//	err = net.LoadStateDict(stateDict)
package serialization
