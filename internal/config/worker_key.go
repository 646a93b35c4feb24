package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	PersistStatsQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	PersistStatsQueue:   "persist_stats_queue",
}
