package config

type WorkerKeyStruct struct {
	PersistMonitorEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistMonitorEventsQueue: "persist_monitor_events_queue",
}
