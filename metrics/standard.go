package metrics

// Pre-defined metrics for exchange-core's journal, snapshot, recovery, and
// market-data components. All metrics live in DefaultRegistry so they are
// globally accessible without passing a registry around.

var (
	// ---- Journal metrics (component A/B/C) ----

	// JournalAppended counts entries successfully appended to the journal.
	JournalAppended = DefaultRegistry.Counter("journal.appended_total")
	// JournalAppendLatency records append() call latency in milliseconds.
	JournalAppendLatency = DefaultRegistry.Histogram("journal.append_latency_ms")
	// JournalFsyncs counts fsync calls issued by the writer.
	JournalFsyncs = DefaultRegistry.Counter("journal.fsync_total")
	// JournalFsyncLatency records fsync call latency in milliseconds.
	JournalFsyncLatency = DefaultRegistry.Histogram("journal.fsync_latency_ms")
	// JournalRotations counts segment file rotations.
	JournalRotations = DefaultRegistry.Counter("journal.rotations_total")
	// JournalChecksumFailures counts frames rejected by checksum validation.
	JournalChecksumFailures = DefaultRegistry.Counter("journal.checksum_failures_total")
	// JournalBytesWritten tracks cumulative bytes written to the journal.
	JournalBytesWritten = DefaultRegistry.Counter("journal.bytes_written_total")

	// ---- Snapshot metrics (component D) ----

	// SnapshotsWritten counts successful snapshot writes.
	SnapshotsWritten = DefaultRegistry.Counter("snapshot.written_total")
	// SnapshotWriteLatency records snapshot write duration in milliseconds.
	SnapshotWriteLatency = DefaultRegistry.Histogram("snapshot.write_latency_ms")
	// SnapshotsLoaded counts successful snapshot loads.
	SnapshotsLoaded = DefaultRegistry.Counter("snapshot.loaded_total")
	// SnapshotIntegrityFailures counts snapshots rejected by hash mismatch.
	SnapshotIntegrityFailures = DefaultRegistry.Counter("snapshot.integrity_failures_total")
	// SnapshotsRetired counts snapshots removed by the retention policy.
	SnapshotsRetired = DefaultRegistry.Counter("snapshot.retired_total")
	// SnapshotBytesCompressed tracks compressed snapshot bytes written.
	SnapshotBytesCompressed = DefaultRegistry.Counter("snapshot.bytes_compressed_total")

	// ---- Recovery metrics (component E) ----

	// RecoveryReplays counts recovery runs performed.
	RecoveryReplays = DefaultRegistry.Counter("recovery.replays_total")
	// RecoveryReplayDuration records full recovery duration in milliseconds.
	RecoveryReplayDuration = DefaultRegistry.Histogram("recovery.replay_duration_ms")
	// RecoveryEntriesReplayed counts journal entries applied during recovery.
	RecoveryEntriesReplayed = DefaultRegistry.Counter("recovery.entries_replayed_total")
	// RecoveryDivergences counts replay runs that detected a state hash
	// divergence against an expected value.
	RecoveryDivergences = DefaultRegistry.Counter("recovery.divergences_total")

	// ---- Market-data metrics (component F) ----

	// MarketDataDeltasEmitted counts order-book deltas published to
	// subscribers.
	MarketDataDeltasEmitted = DefaultRegistry.Counter("marketdata.deltas_emitted_total")
	// MarketDataGapsDetected counts sequence gaps detected by the ingestion
	// gate.
	MarketDataGapsDetected = DefaultRegistry.Counter("marketdata.gaps_detected_total")
	// MarketDataDuplicatesDropped counts duplicate events dropped by the
	// ingestion gate's dedup window.
	MarketDataDuplicatesDropped = DefaultRegistry.Counter("marketdata.duplicates_dropped_total")
	// MarketDataBackpressureIncidents counts subscribers disconnected or
	// dropped for falling behind their outbound queue.
	MarketDataBackpressureIncidents = DefaultRegistry.Counter("marketdata.backpressure_incidents_total")
	// MarketDataSubscribersConnected tracks the current connected subscriber
	// count on the fan-out plane.
	MarketDataSubscribersConnected = DefaultRegistry.Gauge("marketdata.subscribers_connected")
	// MarketDataCandlesBuilt counts candle buckets closed by the candle
	// builder.
	MarketDataCandlesBuilt = DefaultRegistry.Counter("marketdata.candles_built_total")
	// MarketDataBroadcastLatency records the time from delta generation to
	// subscriber write, in milliseconds.
	MarketDataBroadcastLatency = DefaultRegistry.Histogram("marketdata.broadcast_latency_ms")
	// MarketDataEventProcessingLatency is a bounded 1000-sample window of
	// per-entry projection latency in milliseconds, feeding the
	// event_processing_p99 alert threshold (AlertChecker.CheckThresholds).
	MarketDataEventProcessingLatency = NewLatencyTracker(1000)
)
