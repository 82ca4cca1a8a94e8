package logfields

import "go.uber.org/zap"

func EventProvider(val string) zap.Field {
	return zap.String("event_provider", val)
}

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func Bucket(val string) zap.Field {
	return zap.String("dispatch.bucket", val)
}

func TaskKind(val string) zap.Field {
	return zap.String("dispatch.task_kind", val)
}
