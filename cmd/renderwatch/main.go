package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/morphreel/api/internal/client"
	"github.com/morphreel/api/internal/config"
	"github.com/morphreel/api/internal/logger"
	"github.com/morphreel/api/internal/model"
	"github.com/morphreel/api/internal/progress"
	"github.com/morphreel/api/internal/tracker"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8000", "render API base URL")
		token     = flag.String("token", "", "bearer token for the render API")
		jobID     = flag.String("job", "", "attach to an existing job instead of starting one")
		project   = flag.String("project", "demo", "project name for a new render")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	api := client.NewRenderClient(client.RenderClientConfig{
		BaseURL:   *serverURL,
		AuthToken: *token,
		Logger:    zlog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, channelURL, err := resolveJob(ctx, api, *serverURL, *jobID, *project)
	if err != nil {
		zlog.Fatal("failed to resolve job", zap.Error(err))
	}
	fmt.Printf("watching job %s\n", id)

	store := progress.NewStore()
	tr := tracker.New(id, channelURL, tracker.Config{
		HeartbeatInterval:    cfg.Tracker.HeartbeatInterval,
		ReconnectDelay:       cfg.Tracker.ReconnectDelay,
		MaxReconnectAttempts: cfg.Tracker.MaxReconnectAttempts,
		AutoReconnect:        cfg.Tracker.AutoReconnect,
		DialTimeout:          cfg.Tracker.DialTimeout,
	}, store,
		tracker.WithCancelRequester(api),
		tracker.WithLogger(zlog),
	)
	if err := tr.Start(ctx); err != nil {
		zlog.Fatal("failed to start tracker", zap.Error(err))
	}
	defer tr.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case snap := <-store.Updates():
			printSnapshot(snap)

		case <-tr.Done():
			snap := store.Snapshot()
			printSnapshot(snap)
			if snap.Conn == progress.ConnError {
				fmt.Println("connection lost; job may still be running server-side")
				os.Exit(1)
			}
			return

		case <-sigCh:
			fmt.Println("cancelling render...")
			if err := tr.Cancel(ctx); err != nil {
				zlog.Warn("cancel request failed", zap.Error(err))
			}
			// a second signal aborts without waiting for confirmation
			go func() {
				<-sigCh
				os.Exit(130)
			}()
		}
	}
}

// resolveJob either attaches to an existing job or starts a small demo
// render, returning the job ID and its progress channel address.
func resolveJob(ctx context.Context, api *client.RenderClient, baseURL, jobID, project string) (string, string, error) {
	if jobID != "" {
		if _, err := api.GetStatus(ctx, jobID); err != nil {
			return "", "", err
		}
		channelURL, err := client.WebSocketURL(baseURL, jobID)
		if err != nil {
			return "", "", err
		}
		return jobID, channelURL, nil
	}

	resp, err := api.StartRender(ctx, &model.RenderStartRequest{
		ProjectName: project,
		Settings: model.RenderSettings{
			AspectRatio:           model.AspectPortrait,
			TransitionDurationSec: 5,
		},
		GlobalScene: model.GlobalScene{
			LocationPrompt: "taking a selfie at the Eiffel Tower, golden hour lighting",
		},
		Sequence: []model.Subject{
			{ID: "anchor", Name: "Tourist", VisualPrompt: "A friendly tourist in casual clothes"},
			{ID: "subj_1", Name: "Artist", VisualPrompt: "A painter holding a palette"},
		},
	})
	if err != nil {
		return "", "", err
	}
	return resp.JobID, resp.WebSocketURL, nil
}

func printSnapshot(snap progress.Snapshot) {
	job := snap.Job
	switch {
	case job.State == model.JobStateComplete:
		fmt.Printf("[%s] complete: %s\n", snap.Conn, job.Outputs["default"])
	case job.State == model.JobStateFailed:
		fmt.Printf("[%s] failed: %s\n", snap.Conn, job.Error)
	case job.State == model.JobStateCancelled:
		fmt.Printf("[%s] cancelled\n", snap.Conn)
	default:
		fmt.Printf("[%s] %5.1f%% step %d/%d %s %s\n",
			snap.Conn, job.Percent, job.Step, job.TotalSteps, job.Phase, job.Message)
	}
}
