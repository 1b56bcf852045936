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

//go:build windows && amd64

package patch

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func replacePrologue(ptr unsafe.Pointer, buf []byte) {
	if err := makeMemRWX(ptr, len(buf)); err != nil {
		panic(err)
	}
	funcPrologue := unsafe.Slice((*uint8)(ptr), len(buf))
	copy(funcPrologue, buf)
}

func makeMemRWX(ptr unsafe.Pointer, size int) error {
	var oldPerms uint32
	if err := windows.VirtualProtect(uintptr(ptr), uintptr(size), windows.PAGE_EXECUTE_READWRITE, &oldPerms); err != nil {
		return fmt.Errorf("cannot make code at %p writable: %w", ptr, err)
	}
	return nil
}
