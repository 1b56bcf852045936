// This file is part of Testkit project, available at https://github.com/qrdl/testkit
// Copyright (c) 2024-2026 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build (linux || dragonfly || freebsd || netbsd || openbsd || windows) && amd64

package patch

import (
	"encoding/binary"
	"unsafe"
)

const jmpInstrLength = 5 // length of local JMP instruction with operand
const jmpInstrCode = uint8(0xE9)

// overridePrologue replaces the beginning of org with JMP <relative address of repl>
// and returns the replaced bytes
func overridePrologue(orgPointer, replPointer unsafe.Pointer) []byte {
	orgPrologue := make([]byte, jmpInstrLength)
	copy(orgPrologue, unsafe.Slice((*uint8)(orgPointer), jmpInstrLength))

	newPrologue := make([]byte, jmpInstrLength)
	newPrologue[0] = jmpInstrCode
	jumpLocation := uintptr(replPointer) - (uintptr(orgPointer) + jmpInstrLength)
	binary.NativeEndian.PutUint32(newPrologue[1:], uint32(jumpLocation))

	replacePrologue(orgPointer, newPrologue) // OS-specific
	return orgPrologue
}

func resetPrologue(ptr unsafe.Pointer, buf []byte) {
	replacePrologue(ptr, buf) // OS-specific
}
