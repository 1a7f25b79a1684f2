package psrp

// MessageType is a PSRP message type code (spec §4.4). The registry below
// is a closed, fixed table grounded on PSRPParser.MSG_TYPES in the
// original implementation's psrp.py — it is data, not behavior.
type MessageType uint32

// Message type codes, [MS-PSRP] 2.2.1.
const (
	SessionCapability      MessageType = 0x00010002
	InitRunspacePool       MessageType = 0x00010004
	PublicKey              MessageType = 0x00010005
	EncryptedSessionKey    MessageType = 0x00010006
	PublicKeyRequest       MessageType = 0x00010007
	ConnectRunspacePool    MessageType = 0x00010008
	SetMaxRunspaces        MessageType = 0x00021002
	SetMinRunspaces        MessageType = 0x00021003
	RunspaceAvailability   MessageType = 0x00021004
	RunspacePoolState      MessageType = 0x00021005
	CreatePipeline         MessageType = 0x00021006
	GetAvailableRunspaces  MessageType = 0x00021007
	UserEvent              MessageType = 0x00021008
	ApplicationPrivateData MessageType = 0x00021009
	GetCommandMetadata     MessageType = 0x0002100A
	RunspacePoolInitData   MessageType = 0x0002100B
	ResetRunspaceState     MessageType = 0x0002100C
	RunspacePoolHostCall   MessageType = 0x00021100
	RunspacePoolHostResp   MessageType = 0x00021101
	PipelineInput          MessageType = 0x00041002
	EndOfPipelineInput     MessageType = 0x00041003
	PipelineOutput         MessageType = 0x00041004
	ErrorRecord            MessageType = 0x00041005
	PipelineState          MessageType = 0x00041006
	DebugRecord            MessageType = 0x00041007
	VerboseRecord          MessageType = 0x00041008
	WarningRecord          MessageType = 0x00041009
	ProgressRecord         MessageType = 0x00041010
	InformationRecord      MessageType = 0x00041011
	PipelineHostCall       MessageType = 0x00041100
	PipelineHostResponse   MessageType = 0x00041101
)

var messageTypeNames = map[MessageType]string{
	SessionCapability:      "SESSION_CAPABILITY",
	InitRunspacePool:       "INIT_RUNSPACEPOOL",
	PublicKey:              "PUBLIC_KEY",
	EncryptedSessionKey:    "ENCRYPTED_SESSION_KEY",
	PublicKeyRequest:       "PUBLIC_KEY_REQUEST",
	ConnectRunspacePool:    "CONNECT_RUNSPACEPOOL",
	SetMaxRunspaces:        "SET_MAX_RUNSPACES",
	SetMinRunspaces:        "SET_MIN_RUNSPACES",
	RunspaceAvailability:   "RUNSPACE_AVAILABILITY",
	RunspacePoolState:      "RUNSPACEPOOL_STATE",
	CreatePipeline:         "CREATE_PIPELINE",
	GetAvailableRunspaces:  "GET_AVAILABLE_RUNSPACES",
	UserEvent:              "USER_EVENT",
	ApplicationPrivateData: "APPLICATION_PRIVATE_DATA",
	GetCommandMetadata:     "GET_COMMAND_METADATA",
	RunspacePoolInitData:   "RUNSPACEPOOL_INIT_DATA",
	ResetRunspaceState:     "RESET_RUNSPACE_STATE",
	RunspacePoolHostCall:   "RUNSPACEPOOL_HOST_CALL",
	RunspacePoolHostResp:   "RUNSPACEPOOL_HOST_RESPONSE",
	PipelineInput:          "PIPELINE_INPUT",
	EndOfPipelineInput:     "END_OF_PIPELINE_INPUT",
	PipelineOutput:         "PIPELINE_OUTPUT",
	ErrorRecord:            "ERROR_RECORD",
	PipelineState:          "PIPELINE_STATE",
	DebugRecord:            "DEBUG_RECORD",
	VerboseRecord:          "VERBOSE_RECORD",
	WarningRecord:          "WARNING_RECORD",
	ProgressRecord:         "PROGRESS_RECORD",
	InformationRecord:      "INFORMATION_RECORD",
	PipelineHostCall:       "PIPELINE_HOST_CALL",
	PipelineHostResponse:   "PIPELINE_HOST_RESPONSE",
}

// Name returns the symbolic name for a message type, or "UNKNOWN" if t is
// not in the closed registry. Unknown types are never a reason to panic
// (spec §9 "closed enum tables").
func (t MessageType) Name() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Known reports whether t is one of the 31 registered message types.
func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

func (t MessageType) String() string {
	return t.Name()
}
