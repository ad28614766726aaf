package messaging

// Subjects follow {domain}.{resource}.{action}.
const (
	// SubjectReadingsIngested carries every batch that produced at least one valid record.
	SubjectReadingsIngested = "timeseries.readings.ingested"

	// SubjectStatsUpdated carries the running totals after every batch.
	SubjectStatsUpdated = "timeseries.stats.updated"

	// SubjectAll matches every subject the listener publishes.
	SubjectAll = "timeseries.>"
)

// Header names set on published messages.
const (
	HeaderMinute  = "Ts-Minute"
	HeaderSource  = "Ts-Source"
	HeaderVersion = "Ts-Version"

	// HeaderMsgID identifies a message for broker-side de-duplication.
	HeaderMsgID = "Nats-Msg-Id"
)
