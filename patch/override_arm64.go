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

//go:build (linux || dragonfly || freebsd || netbsd || openbsd) && arm64

package patch

/*
// ARM doesn't automatically invalidate instruction cache so manual flushing needed
// after changing memory page with executable code

#include <stdint.h>
#include <stddef.h>
void flush_cache(uint64_t addr, size_t len) {
	char *target = (char *)addr;
	__builtin___clear_cache(target, target + len);
}
*/
import "C"

import (
	"encoding/binary"
	"unsafe"
)

const instrLength = 4
const jmpInstrCode = uint32(0x14) << 24 // B instruction, imm26 holds the offset in instructions

func overridePrologue(orgPointer, replPointer unsafe.Pointer) []byte {
	orgPrologue := make([]byte, instrLength)
	copy(orgPrologue, unsafe.Slice((*uint8)(orgPointer), instrLength))

	newPrologue := make([]byte, instrLength)
	jumpLocation := (int64(uintptr(replPointer)) - int64(uintptr(orgPointer))) / instrLength
	binary.LittleEndian.PutUint32(newPrologue, jmpInstrCode|uint32(jumpLocation)&0x03FFFFFF)

	replacePrologue(orgPointer, newPrologue) // OS-specific
	C.flush_cache(C.uint64_t(uintptr(orgPointer)), C.size_t(instrLength))

	return orgPrologue
}

func resetPrologue(ptr unsafe.Pointer, buf []byte) {
	replacePrologue(ptr, buf) // OS-specific
	C.flush_cache(C.uint64_t(uintptr(ptr)), C.size_t(instrLength))
}
