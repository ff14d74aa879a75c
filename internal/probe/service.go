// Package probe is the command surface a desktop frontend calls: volume
// capacity, folder size and a one-shot TCP exchange. Each call is
// independent; the Service keeps no state between them.
package probe

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/IYouKnow/atlas-probe/internal/fault"
	"github.com/IYouKnow/atlas-probe/internal/metrics"
	"github.com/IYouKnow/atlas-probe/internal/storage"
	"github.com/IYouKnow/atlas-probe/internal/tcpmsg"
	"github.com/IYouKnow/atlas-probe/internal/usage"
	"github.com/IYouKnow/atlas-probe/internal/volume"
)

// Command names as the frontend invokes them.
const (
	CmdDriveSize   = "get_drive_size"
	CmdFolderSize  = "get_folder_size"
	CmdSendTCP     = "send_tcp_message"
	CmdVolumes     = "list_volumes"
	CmdStorageInfo = "storage_report"
)

type DriveSize struct {
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
}

type FolderSizeRequest struct {
	Path string `json:"path"`
	// BestEffort overrides the configured permission policy for this call.
	BestEffort *bool `json:"best_effort,omitempty"`
}

type TCPRequest struct {
	Address string          `json:"address"`
	Port    uint16          `json:"port"`
	Message json.RawMessage `json:"message"`
}

type StorageRequest struct {
	Categories []storage.Category `json:"categories"`
}

// Service runs host commands.
type Service struct {
	folders *usage.Aggregator
	volumes *volume.Reader
	tcp     *tcpmsg.Client
	reports *storage.Reporter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New wires a Service. A nil logger falls back to slog.Default.
func New(folders *usage.Aggregator, volumes *volume.Reader, tcp *tcpmsg.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		folders: folders,
		volumes: volumes,
		tcp:     tcp,
		reports: storage.NewReporter(folders),
		logger:  logger,
		tracer:  otel.Tracer("github.com/IYouKnow/atlas-probe/internal/probe"),
	}
}

// GetDriveSize reports the capacity of the volume mounted at path.
func (s *Service) GetDriveSize(ctx context.Context, path string) (DriveSize, error) {
	ctx, done := s.begin(ctx, CmdDriveSize, attribute.String("path", path))
	total, avail, err := s.volumes.DriveSize(ctx, path)
	done(err, "path", path, "total", total, "available", avail)
	if err != nil {
		return DriveSize{}, err
	}
	return DriveSize{Total: total, Available: avail}, nil
}

// GetFolderSize sums the sizes of all files below req.Path.
func (s *Service) GetFolderSize(ctx context.Context, req FolderSizeRequest) (uint64, error) {
	ctx, done := s.begin(ctx, CmdFolderSize, attribute.String("path", req.Path))
	agg := s.folders
	if req.BestEffort != nil {
		opts := agg.Options()
		opts.SkipPermissionDenied = *req.BestEffort
		agg = agg.WithOptions(opts)
	}
	size, err := agg.FolderSize(ctx, req.Path)
	done(err, "path", req.Path, "bytes", size, "best_effort", agg.Options().SkipPermissionDenied)
	if err != nil {
		return 0, err
	}
	metrics.FolderBytesTotal.Add(float64(size))
	return size, nil
}

// SendTCPMessage sends req.Message to req.Address:req.Port and returns the reply.
func (s *Service) SendTCPMessage(ctx context.Context, req TCPRequest) (string, error) {
	ctx, done := s.begin(ctx, CmdSendTCP,
		attribute.String("address", req.Address),
		attribute.Int("port", int(req.Port)),
	)
	reply, err := s.tcp.Send(ctx, req.Address, req.Port, req.Message)
	done(err, "address", req.Address, "port", req.Port, "reply_bytes", len(reply))
	if err != nil {
		return "", err
	}
	return reply, nil
}

// ListVolumes returns every readable mounted volume.
func (s *Service) ListVolumes(ctx context.Context) ([]volume.Volume, error) {
	ctx, done := s.begin(ctx, CmdVolumes)
	vols, err := s.volumes.Volumes(ctx)
	done(err, "count", len(vols))
	return vols, err
}

// StorageReport measures the application's directories by category.
func (s *Service) StorageReport(ctx context.Context, categories []storage.Category) (storage.Report, error) {
	ctx, done := s.begin(ctx, CmdStorageInfo, attribute.Int("categories", len(categories)))
	rep, err := s.reports.Build(ctx, categories)
	done(err, "categories", len(categories), "used", rep.Used)
	return rep, err
}

// begin opens a span for command and returns the function that records its
// outcome: one log line, metrics and span status.
func (s *Service) begin(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, func(err error, logArgs ...any)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "probe."+command, trace.WithAttributes(attrs...))

	return ctx, func(err error, logArgs ...any) {
		defer span.End()
		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = fault.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
		metrics.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())

		args := append([]any{"command", command, "duration_ms", elapsed.Milliseconds()}, logArgs...)
		if err != nil {
			s.logger.Warn("command failed", append(args, "kind", outcome, "err", err)...)
			return
		}
		s.logger.Info("command", args...)
	}
}
