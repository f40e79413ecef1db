package constants

const StatusActive = "Active"
const StatusOffline = "Offline"

const TASK_SYNC_JOB_CREATED string = "market.sync_job_created"

const REDIS_SYNC_LEASE_KEY = "market:sync:lease"

const DEFAULT_LIST_LIMIT = 10
const MAX_LIST_LIMIT = 100

const REWARD_UNIT = "NGR"
