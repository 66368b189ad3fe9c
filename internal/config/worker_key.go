package config

type WorkerKeyStruct struct {
	ScoreJobsQueue      string
	PersistAnswersQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ScoreJobsQueue:      "score_jobs_queue",
	PersistAnswersQueue: "persist_answers_queue",
}
