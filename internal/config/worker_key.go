package config

type WorkerKeyStruct struct {
	PersistSessionQueue  string
	PersistProctorQueue  string
	PersistPracticeQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSessionQueue:  "persist_session_queue",
	PersistProctorQueue:  "persist_proctor_queue",
	PersistPracticeQueue: "persist_practice_queue",
}
