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

package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/cubefs/objectstore/store"
)

// Config is the on-disk daemon config: where to mount, how many pipeline
// workers to run, and everything store.Config already names.
type Config struct {
	store.Config

	BaseDir       string    `json:"base_dir"`
	MaxProcessors int       `json:"max_processors"`
	LogLevel      log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "objectstored.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}

	if cfg.BaseDir == "" {
		cfg.BaseDir = "./run/objectstore"
	}
	if cfg.MaxProcessors > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcessors)
	}
	modifyOpenFiles()
	log.SetOutputLevel(cfg.LogLevel)

	if err := store.Mkfs(cfg.BaseDir); err != nil {
		log.Info("mkfs: ", err)
	}

	s, err := store.Mount(context.Background(), cfg.BaseDir, &cfg.Config)
	if err != nil {
		log.Fatal(errors.Detail(err))
	}
	log.Info("objectstore mounted: basedir=", cfg.BaseDir, " fsid=", s.FSID())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	if err := s.Umount(); err != nil {
		log.Error("umount failed: ", err)
	}
}

func modifyOpenFiles() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Fatalf("getting rlimit failed: %s", err)
	}
	if rLimit.Cur >= 102400 && rLimit.Max >= 102400 {
		return
	}
	rLimit.Cur = 1024000
	rLimit.Max = 1024000
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Fatalf("setting rlimit failed: %s", err)
	}
}
