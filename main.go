// Command adjutant runs the containerized build-task worker: it wires
// configuration, the container engine, the policy resolver, the
// worker, and the monitoring server together and blocks until it
// receives SIGINT or SIGTERM. No task source feeds Worker.Dispatch here.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/container"
	"github.com/koji-project/adjutant/hub"
	"github.com/koji-project/adjutant/monitor"
	"github.com/koji-project/adjutant/node"
	"github.com/koji-project/adjutant/policy"
	"github.com/koji-project/adjutant/worker"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfgPath := os.Getenv("KOJI_ADJUTANT_CONFIG_FILE"); cfgPath != "" {
		if err := config.LoadFile(cfgPath); err != nil {
			logrus.WithError(err).Fatal("failed to load config file")
		}
	}

	timeouts := config.ContainerTimeouts()
	engine, err := container.NewEngine(container.EngineOptions{
		SocketURI: config.PodmanSocket(),
		Timeouts: container.Timeouts{
			Pull:      time.Duration(timeouts.Pull) * time.Second,
			Start:     time.Duration(timeouts.Start) * time.Second,
			StopGrace: time.Duration(timeouts.StopGrace) * time.Second,
		},
		WorkerID: workerID(),
		Labels:   config.ContainerLabels(),
		Logger:   logrus.WithField("component", "engine"),
	})
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize container engine")
	}

	session := hub.NewFakeSession() // the in-memory fake is the only hub.Session implementation in this module
	resolver := policy.NewResolver(session)
	capacity := node.LocalCapacity(config.WorkerCapacity())

	historyTTL := time.Duration(config.MonitoringContainerHistoryTTL()) * time.Second
	w := worker.New(workerID(), engine, resolver, session, capacity, historyTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.MonitoringEnabled() {
		srv := monitor.New(monitor.Config{
			WorkerID:   w.Name,
			Bind:       config.MonitoringBind(),
			Containers: w.Containers,
			Tasks:      w.Tasks,
			Capacity:   capacity,
		})
		go func() {
			logrus.WithField("bind", config.MonitoringBind()).Info("monitoring server listening")
			if err := srv.ListenAndServe(); err != nil {
				logrus.WithError(err).Error("monitoring server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logrus.WithField("worker_id", w.Name).Info("adjutant worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("shutting down")
	case <-ctx.Done():
	}
}

func workerID() string {
	if v := os.Getenv("KOJI_ADJUTANT_WORKER_ID"); v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return "adjutant-worker"
	}
	return host
}
