package util

import (
	libconstants "github.com/filswan/go-swan-lib/constants"
)

type BasicResponse struct {
	Status    string      `json:"status"`
	Code      int         `json:"code"`
	ErrorCode string      `json:"error_code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	PageInfo  *PageInfo   `json:"page_info,omitempty"`
}

type PageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func CreateSuccessResponse(_data interface{}) BasicResponse {
	return BasicResponse{
		Status: libconstants.SWAN_API_STATUS_SUCCESS,
		Data:   _data,
		Code:   SuccessCode,
	}
}

func CreatePageResponse(_data interface{}, page PageInfo) BasicResponse {
	resp := CreateSuccessResponse(_data)
	resp.PageInfo = &page
	return resp
}

func CreateErrorResponse(code int, errMsg ...string) BasicResponse {
	var msg string
	if len(errMsg) == 0 {
		msg = codeMsg[code]
	} else {
		msg = errMsg[0]
	}
	return BasicResponse{
		Status:    libconstants.SWAN_API_STATUS_FAIL,
		Code:      code,
		ErrorCode: errorCodes[code],
		Message:   msg,
	}
}

const (
	SuccessCode = 200
	JsonError   = 400
	ServerError = 500

	MissingFieldsError       = 4001
	InvalidJobIdError        = 4002
	MissingWorkerError       = 4003
	MissingAddressError      = 4004
	InvalidDeadlineError     = 4005
	InvalidComputePowerError = 4006
	InvalidStatusError       = 4007
	MalformedEventError      = 4008

	JobNotJoinableError    = 4101
	JobNotSubmittableError = 4102
	DeadlinePassedError    = 4103
	CapacityReachedError   = 4104

	JobNotFoundError     = 4401
	AccountNotFoundError = 4402
	NodeNotFoundError    = 4403

	DuplicateOnchainIdError = 4901
	SyncInProgressError     = 4902
)

var codeMsg = map[int]string{
	JsonError:   "An error occurred while converting to json",
	ServerError: "Internal server error",

	MissingFieldsError:       "Title, reward, requiredNodes, deadline, and requesterAddress are required",
	InvalidJobIdError:        "Valid job ID is required",
	MissingWorkerError:       "Worker address is required",
	MissingAddressError:      "Address is required",
	InvalidDeadlineError:     "Invalid deadline format. Use ISO string or relative format like 'in 2h'",
	InvalidComputePowerError: "Compute power is required and must be a positive number",
	InvalidStatusError:       "Unknown job status",
	MalformedEventError:      "Malformed JobCreated event",

	JobNotJoinableError:    "Job is not available for joining",
	JobNotSubmittableError: "Job is not available for submission",
	DeadlinePassedError:    "Job deadline has passed",
	CapacityReachedError:   "Job already has all required nodes",

	JobNotFoundError:     "Job not found",
	AccountNotFoundError: "User not found",
	NodeNotFoundError:    "Node not found",

	DuplicateOnchainIdError: "Job with this onchainId already exists",
	SyncInProgressError:     "Another sync pass is running",
}

var errorCodes = map[int]string{
	JsonError:   "INVALID_JSON",
	ServerError: "INTERNAL_ERROR",

	MissingFieldsError:       "MISSING_REQUIRED_FIELDS",
	InvalidJobIdError:        "INVALID_JOB_ID",
	MissingWorkerError:       "MISSING_WORKER_ADDRESS",
	MissingAddressError:      "MISSING_ADDRESS",
	InvalidDeadlineError:     "INVALID_DEADLINE",
	InvalidComputePowerError: "INVALID_COMPUTE_POWER",
	InvalidStatusError:       "INVALID_STATUS",
	MalformedEventError:      "MALFORMED_EVENT",

	JobNotJoinableError:    "JOB_NOT_JOINABLE",
	JobNotSubmittableError: "JOB_NOT_SUBMITTABLE",
	DeadlinePassedError:    "DEADLINE_PASSED",
	CapacityReachedError:   "JOB_CAPACITY_REACHED",

	JobNotFoundError:     "JOB_NOT_FOUND",
	AccountNotFoundError: "USER_NOT_FOUND",
	NodeNotFoundError:    "NODE_NOT_FOUND",

	DuplicateOnchainIdError: "DUPLICATE_ONCHAIN_ID",
	SyncInProgressError:     "SYNC_IN_PROGRESS",
}

// ErrorCode returns the stable string code for a numeric response code.
func ErrorCode(code int) string {
	return errorCodes[code]
}
