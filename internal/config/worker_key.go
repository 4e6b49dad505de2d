package config

type WorkerKeyStruct struct {
	RepairScheduleQueue string
}

var WorkerKey = &WorkerKeyStruct{
	RepairScheduleQueue: "repair_schedule_queue",
}
