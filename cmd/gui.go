package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"

	"racetimer/internal/audio/graph"
	"racetimer/internal/config"
	"racetimer/internal/controller"
	"racetimer/internal/core/model"
	"racetimer/internal/core/stopwatch"
	"racetimer/internal/media"
	"racetimer/internal/platform"
	"racetimer/internal/ui/preferences"
	"racetimer/internal/ui/timerwindow"
	"racetimer/internal/ui/tray"
	"racetimer/resources"
)

func runGUI(parent context.Context, cc *commandContext, clipPath string) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cc.ensureLogger()
	if err != nil {
		return err
	}

	guard, err := platform.AcquireSingleInstance(config.AppName)
	if err != nil {
		if errors.Is(err, platform.ErrAlreadyRunning) {
			return fmt.Errorf("%s is already running", config.AppName)
		}
		return fmt.Errorf("single instance: %w", err)
	}
	defer func() {
		_ = guard.Release()
	}()

	store, backend, err := cc.openSettings(logger)
	if err != nil {
		return err
	}
	logger.Info("settings loaded", slog.String("path", backend.Path()))

	var output graph.SinkFactory = platform.OpenSound
	ctrl := controller.New(store, controller.Options{
		SampleRate: cfg.Audio.SampleRate,
		FrameRate:  cfg.UI.FrameRate,
		FFmpegPath: cfg.Audio.FFmpegPath,
		Output:     output,
		Audible:    cfg.Audio.Audible,
	}, logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	fyneApp := app.NewWithID("com.racetimer.app")
	fyneApp.SetIcon(resources.MustIcon(resources.IconIdle))

	mainWindow := timerwindow.New(fyneApp, ctrl, logger.With(slog.String("component", "ui")))
	prefsWindow := preferences.New(fyneApp, store, func(updated model.DetectorSettings) {
		logger.Info("detector settings saved",
			slog.Bool("enabled", updated.Enabled),
			slog.Float64("frequency_hz", updated.TargetFrequencyHz),
			slog.Float64("threshold_db", updated.ThresholdDB),
			slog.Float64("hold_ms", updated.HoldMs),
			slog.Int("sensitivity", updated.Sensitivity),
		)
	})
	mainWindow.SetOnSettings(prefsWindow.Show)

	quit := func() {
		cancel()
		fyneApp.Quit()
	}

	if desktopApp, ok := fyneApp.(desktop.App); ok {
		trayManager := tray.New(desktopApp, tray.Icons{
			Idle:    resources.MustIcon(resources.IconIdle),
			Running: resources.MustIcon(resources.IconRunning),
		}, tray.Callbacks{
			OnShow:     mainWindow.Show,
			OnStart:    ctrl.StartTimer,
			OnStop:     ctrl.StopTimer,
			OnReset:    func() { ctrl.ResetTimer() },
			OnPlay:     ctrl.TogglePlay,
			OnSettings: prefsWindow.Show,
			OnQuit:     quit,
		})
		trayManager.SetPlayable(false)
		followTray(ctx, ctrl, trayManager)
		// Closing the window keeps the timer running in the tray.
		mainWindow.SetOnClose(mainWindow.Window().Hide)
	} else {
		logger.Debug("system tray unsupported on this platform")
		mainWindow.SetOnClose(quit)
	}

	mainWindow.Bind(ctx)
	ctrl.Run(ctx)
	defer func() {
		mainWindow.Close()
		if err := ctrl.Close(); err != nil {
			logger.Warn("close controller", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		fyne.Do(fyneApp.Quit)
	}()

	if clipPath != "" {
		mainWindow.OpenFile(clipPath)
	}
	mainWindow.Show()
	fyneApp.Run()
	return nil
}

func followTray(ctx context.Context, ctrl *controller.Controller, trayManager *tray.Manager) {
	events := ctrl.Stopwatch().Subscribe(16)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Type == stopwatch.EventTick {
					continue
				}
				fyne.Do(func() { trayManager.Follow(event) })
			}
		}
	}()

	setPlayable := func(media.Event) {
		loaded := ctrl.Player().Loaded()
		fyne.Do(func() { trayManager.SetPlayable(loaded) })
	}
	ctrl.Player().Subscribe(media.EventLoadedMetadata, setPlayable)
}
