// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package store

import (
	"os"
	"syscall"

	apierrors "github.com/cubefs/objectstore/errors"
)

// lockFsid opens the fsid file at path, takes an exclusive non-blocking
// advisory lock on it, and returns its uuid text. The returned file must
// stay open for the lock to hold; closing it releases the lock. A second
// mount attempt against the same basedir fails with ErrBusy.
func lockFsid(path string) (string, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return "", nil, apierrors.Info(apierrors.ErrNotFound, "mount: fsid missing, run mkfs first")
	}
	if err != nil {
		return "", nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return "", nil, apierrors.Info(apierrors.ErrBusy, "mount: fsid already locked by another process")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return "", nil, err
	}
	return string(data), f, nil
}
