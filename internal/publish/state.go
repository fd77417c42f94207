package publish

// State is a step of the publish state machine.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateValidated       State = "VALIDATED"
	StateStaged          State = "STAGED"
	StateMetadataReady   State = "METADATA_READY"
	StateRecordPending   State = "RECORD_PENDING"
	StateCredentialReady State = "CREDENTIAL_READY"
	StatePublished       State = "PUBLISHED"
	StateRecordUpdated   State = "RECORD_UPDATED"
	StateDone            State = "DONE"

	StateRejected         State = "REJECTED"
	StateStageFailed      State = "STAGE_FAILED"
	StateGenerationFailed State = "GENERATION_FAILED"
	StatePublishFailed    State = "PUBLISH_FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateRejected, StateStageFailed, StateGenerationFailed, StatePublishFailed:
		return true
	}
	return false
}
