// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmanager schedules the daemon's periodic work: the
// synchronizer's send tick and the journal garbage collection.
package taskmanager

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
)

var s gocron.Scheduler

// Init creates the scheduler; Register* calls follow, then Start.
func Init() {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		cclog.Abortf("Taskmanager Init: %s\n", err.Error())
	}
}

// parseDuration parses a duration string and handles errors by logging
// them. A zero duration disables the service using it.
func parseDuration(text string) (time.Duration, error) {
	interval, err := time.ParseDuration(text)
	if err != nil {
		cclog.Warnf("Could not parse duration %q: %v", text, err)
		return 0, err
	}
	return interval, nil
}

func register(name string, interval time.Duration, task func()) {
	if interval == 0 {
		cclog.Infof("TaskManager: %s service disabled", name)
		return
	}
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task))
	if err != nil {
		cclog.Errorf("TaskManager: could not register %s service: %v", name, err)
		return
	}
	cclog.Infof("TaskManager: %s service every %s", name, interval)
}

// Start runs the scheduler.
func Start() {
	s.Start()
}

// Shutdown stops all tasks; running ones finish first.
func Shutdown() {
	if s != nil {
		if err := s.Shutdown(); err != nil {
			cclog.Warnf("TaskManager: shutdown: %v", err)
		}
	}
}
