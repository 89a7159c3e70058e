package states

// Canonical state names referenced across the engine.
const (
	StatePending             = "PENDING"
	StateLockingAccount      = "LOCKING_ACCOUNT"
	StateLockingComplete     = "LOCKING_COMPLETE"
	StateRetiringCredentials = "RETIRING_CREDENTIALS"
	StateCredentialsComplete = "CREDENTIALS_COMPLETE"
	StateRetiringEcom        = "RETIRING_ECOM"
	StateEcomComplete        = "ECOM_COMPLETE"
	StateRetiringForums      = "RETIRING_FORUMS"
	StateForumsComplete      = "FORUMS_COMPLETE"
	StateRetiringEmailLists  = "RETIRING_EMAIL_LISTS"
	StateEmailListsComplete  = "EMAIL_LISTS_COMPLETE"
	StateRetiringEnrollments = "RETIRING_ENROLLMENTS"
	StateEnrollmentsComplete = "ENROLLMENTS_COMPLETE"
	StateRetiringNotes       = "RETIRING_NOTES"
	StateNotesComplete       = "NOTES_COMPLETE"
	StateRetiringLMS         = "RETIRING_LMS"
	StateLMSComplete         = "LMS_COMPLETE"
	StateAddingPartnerQueue  = "ADDING_TO_PARTNER_QUEUE"
	StatePartnerQueueDone    = "PARTNER_QUEUE_COMPLETE"
	StateErrored             = "ERRORED"
	StateAborted             = "ABORTED"
	StateComplete            = "COMPLETE"
)

// DefaultCatalog returns the full retirement pipeline. The working steps
// are optional so deployments can disable subsystems they do not run;
// the entry state and the three outcomes are required. Execution orders
// leave gaps so new intermediate steps can be appended without
// renumbering states already referenced by existing records.
func DefaultCatalog() []State {
	return []State{
		{Name: StatePending, ExecutionOrder: 1, Kind: Normal, Required: true},
		{Name: StateLockingAccount, ExecutionOrder: 20, Kind: Normal},
		{Name: StateLockingComplete, ExecutionOrder: 30, Kind: Normal},
		{Name: StateRetiringCredentials, ExecutionOrder: 40, Kind: Normal},
		{Name: StateCredentialsComplete, ExecutionOrder: 50, Kind: Normal},
		{Name: StateRetiringEcom, ExecutionOrder: 60, Kind: Normal},
		{Name: StateEcomComplete, ExecutionOrder: 70, Kind: Normal},
		{Name: StateRetiringForums, ExecutionOrder: 80, Kind: Normal},
		{Name: StateForumsComplete, ExecutionOrder: 90, Kind: Normal},
		{Name: StateRetiringEmailLists, ExecutionOrder: 100, Kind: Normal},
		{Name: StateEmailListsComplete, ExecutionOrder: 110, Kind: Normal},
		{Name: StateRetiringEnrollments, ExecutionOrder: 120, Kind: Normal},
		{Name: StateEnrollmentsComplete, ExecutionOrder: 130, Kind: Normal},
		{Name: StateRetiringNotes, ExecutionOrder: 140, Kind: Normal},
		{Name: StateNotesComplete, ExecutionOrder: 150, Kind: Normal},
		{Name: StateRetiringLMS, ExecutionOrder: 160, Kind: Normal},
		{Name: StateLMSComplete, ExecutionOrder: 170, Kind: Normal},
		{Name: StateAddingPartnerQueue, ExecutionOrder: 180, Kind: Normal},
		{Name: StatePartnerQueueDone, ExecutionOrder: 190, Kind: Normal},
		{Name: StateErrored, ExecutionOrder: 200, Kind: DeadEndFailure, Required: true},
		{Name: StateAborted, ExecutionOrder: 210, Kind: DeadEndFailure, Required: true},
		{Name: StateComplete, ExecutionOrder: 220, Kind: DeadEndSuccess, Required: true},
	}
}
