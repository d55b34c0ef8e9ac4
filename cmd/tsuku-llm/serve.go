package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tsukumogami/tsuku/pkg/config"
	"github.com/tsukumogami/tsuku/pkg/daemon"
	"github.com/tsukumogami/tsuku/pkg/handler"
	"github.com/tsukumogami/tsuku/pkg/hardware"
	"github.com/tsukumogami/tsuku/pkg/llama"
	"github.com/tsukumogami/tsuku/pkg/modelmanager"
	"github.com/tsukumogami/tsuku/pkg/rpcapi"
	"github.com/tsukumogami/tsuku/pkg/selector"
)

// runServe drives the full startup sequence: acquire the single-instance
// lock, install the signal handler, bind the socket, detect hardware,
// select and fetch a model, load it, and hand off to the supervisor's
// event loop. Every step from hardware detection through model load runs
// under daemon.Interruptible so a signal during a slow model download
// doesn't leave the process unresponsive.
func runServe(idleTimeout time.Duration) error {
	cfg, err := config.Load(idleTimeout)
	if err != nil {
		return fmt.Errorf("%w: resolving config: %v", errStartupFailure, err)
	}
	config.ConfigureLogger(cfg.LogLevel)

	lock, err := daemon.AcquireLock(cfg.SocketPath + ".lock")
	if err != nil {
		return fmt.Errorf("%w: %v", errStartupFailure, err)
	}
	cleanupLock := true
	defer func() {
		if cleanupLock {
			lock.Release()
		}
	}()
	slog.Info("single-instance lock acquired", "path", cfg.SocketPath+".lock")

	sigCh := daemon.InstallSignalHandler()

	listener, err := daemon.Bind(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("%w: binding %s: %v", errStartupFailure, cfg.SocketPath, err)
	}
	cleanupListener := true
	defer func() {
		if cleanupListener {
			listener.Close()
			os.Remove(cfg.SocketPath)
		}
	}()
	slog.Info("listener bound", "socket", cfg.SocketPath, "state_root", cfg.TsukuHome)

	var spec selector.ModelSpec
	var modelPath string
	var model *llama.Model
	var engineCtx *llama.Context
	var vramBytes uint64

	err = daemon.Interruptible(sigCh, func() error {
		profile := hardware.Detect()
		vramBytes = profile.VRAMBytes
		slog.Debug("hardware detected", "backend", profile.GPUBackend, "vram_bytes", profile.VRAMBytes, "ram_bytes", profile.RAMBytes)

		selCfg := selector.Config{
			LocalModel:   os.Getenv("TSUKU_LOCAL_MODEL"),
			LocalBackend: os.Getenv("TSUKU_LOCAL_BACKEND"),
		}
		s, err := selector.Select(profile, selCfg)
		if err != nil {
			return err
		}
		spec = s
		slog.Info("model selected", "name", spec.Name, "backend", spec.Backend, "size_bytes", spec.SizeBytes)

		cache, err := modelmanager.OpenVerifyCache(filepath.Join(cfg.ModelsDir, ".verify-cache"))
		if err != nil {
			return err
		}
		defer cache.Close()

		mgr, err := modelmanager.New(cfg.ModelsDir, modelmanager.WithVerifyCache(cache))
		if err != nil {
			return err
		}

		path, err := mgr.Download(spec.Name, func(written, total int64) {})
		if err != nil {
			return err
		}
		modelPath = path

		nGPULayers := int32(-1)
		if spec.Backend == hardware.BackendNone {
			nGPULayers = 0
		}
		m, err := llama.LoadModel(modelPath, llama.ModelParams{
			NGPULayers: nGPULayers,
			UseMmap:    true,
			UseMlock:   false,
		})
		if err != nil {
			return err
		}
		model = m
		slog.Info("model loaded", "path", modelPath, "n_vocab", model.NVocab(), "n_ctx_train", model.NCtxTrain())

		nCtx := model.NCtxTrain()
		ctx, err := llama.CreateContext(model, llama.ContextParams{
			NCtx:          nCtx,
			NBatch:        nCtx,
			NThreads:      int32(runtime.NumCPU()),
			NThreadsBatch: int32(runtime.NumCPU()),
		})
		if err != nil {
			model.Close()
			return err
		}
		engineCtx = ctx
		return nil
	})
	if err != nil {
		if err == daemon.ErrInterrupted {
			return nil
		}
		return fmt.Errorf("%w: %v", errStartupFailure, err)
	}
	defer engineCtx.Close()
	defer model.Close()

	activity := daemon.NewActivityChannel()
	requestHandler := handler.New(engineCtx, activity)

	status := rpcapi.StatusResponse{
		Ready:              true,
		ModelName:          spec.Name,
		ModelSizeBytes:     spec.SizeBytes,
		Backend:            spec.Backend.String(),
		AvailableVRAMBytes: vramBytes,
	}

	supervisor := daemon.NewSupervisor(listener, lock, cfg.SocketPath, sigCh,
		cfg.IdleTimeout, activity, requestHandler, status)

	// The supervisor owns listener/lock cleanup from here on.
	cleanupListener = false
	cleanupLock = false

	slog.Info("serving", "socket", cfg.SocketPath, "idle_timeout", cfg.IdleTimeout)
	if err := supervisor.Run(); err != nil {
		return fmt.Errorf("%w: %v", errStartupFailure, err)
	}

	return nil
}
