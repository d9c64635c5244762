package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	jobKeyId contextId = iota
	serviceKeyId
	backupIdKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithBackupId(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, backupIdKeyId, id)
}

// WithJob tags the context with the pipeline kind ("backup", "restore").
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKeyId, job)
}

func WithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKeyId, service)
}

func RequestId(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIdKeyId).(string)
	return id
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxJob, ok := ctx.Value(jobKeyId).(string); ok && ctxJob != "" {
		result = result.WithField("job", ctxJob)
	}

	if ctxService, ok := ctx.Value(serviceKeyId).(string); ok && ctxService != "" {
		result = result.WithField("service", ctxService)
	}

	if ctxBackupId, ok := ctx.Value(backupIdKeyId).(int64); ok && ctxBackupId != 0 {
		result = result.WithField("backup_id", ctxBackupId)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
