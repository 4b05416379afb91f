package reconcile

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Progress(float64) {}
func (NopObserver) Item(ItemReport)  {}
func (NopObserver) Finished(Summary) {}

// LogObserver writes run events to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates an observer logging through logger.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Progress(percent float64) {
	o.logger.Debug("Records sync progress", zap.Float64("percent", percent))
}

func (o *LogObserver) Item(report ItemReport) {
	fields := []zap.Field{
		zap.String("item", string(report.Kind)),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("stream_id", report.StreamID),
		zap.Time("start", report.Period.Start),
		zap.Time("end", report.Period.End),
	}
	if report.LocalRecordID > 0 {
		fields = append(fields, zap.Int("record_id", report.LocalRecordID))
	}
	if report.Source > 0 {
		fields = append(fields,
			zap.Int("source", int(report.Source)),
			zap.Int("remote_id", report.RemoteRecordID),
			zap.Float64("score", report.Score))
	}
	if report.Reason != "" {
		fields = append(fields, zap.String("reason", report.Reason))
	}
	if report.AddMode {
		fields = append(fields, zap.Bool("add_mode", true))
	}
	if report.Err != nil {
		fields = append(fields, zap.Error(report.Err))
	}

	level := zapcore.InfoLevel
	switch report.Outcome {
	case OutcomeNoNeed:
		level = zapcore.DebugLevel
	case OutcomeNoSuccess:
		level = zapcore.WarnLevel
	}
	o.logger.Log(level, "Records sync item", fields...)
}

func (o *LogObserver) Finished(s Summary) {
	o.logger.Info("Records sync finished",
		zap.String("run_id", s.RunID),
		zap.Int("task_id", s.TaskID),
		zap.String("stream_type", string(s.Kind)),
		zap.Bool("sync", s.Sync),
		zap.Int("weak_records", s.WeakRecords),
		zap.Int("gaps", s.Gaps),
		zap.Int("updated", s.Updated),
		zap.Int("no_need", s.NoNeed),
		zap.Int("no_find", s.NoFind),
		zap.Int("no_success", s.NoSuccess),
		zap.Duration("elapsed", s.Duration()))
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) Progress(percent float64) {
	for _, o := range m {
		o.Progress(percent)
	}
}

func (m MultiObserver) Item(report ItemReport) {
	for _, o := range m {
		o.Item(report)
	}
}

func (m MultiObserver) Finished(summary Summary) {
	for _, o := range m {
		o.Finished(summary)
	}
}
