package reconcile

// Action is what the reconciler does with one timeline entry.
type Action int

const (
	// None: both sides agree, or there is nothing to act on.
	None Action = iota
	// Push the local record with update.
	Push
	// Pull the server record and apply it locally.
	Pull
	// PushDelete sends the local tombstone, then purges it.
	PushDelete
	// ApplyDelete removes the local record and its mapping.
	ApplyDelete
	// PurgeTombstone drops a tombstone both sides already agree on.
	PurgeTombstone
	// DiscardAndPull drops a tombstone superseded by a newer server update
	// and pulls that update.
	DiscardAndPull
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case Push:
		return "push"
	case Pull:
		return "pull"
	case PushDelete:
		return "push-delete"
	case ApplyDelete:
		return "apply-delete"
	case PurgeTombstone:
		return "purge-tombstone"
	case DiscardAndPull:
		return "discard-and-pull"
	}
	return "unknown"
}

// Decide applies the timestamp precedence rules. Ties go to deletion.
func Decide(e Entry) Action {
	cu, cd, su, sd := e.ClientUpdate, e.ClientDelete, e.ServerUpdate, e.ServerDelete

	switch {
	case cd > 0 && sd > 0:
		return PurgeTombstone

	case cd > 0:
		if cd >= su {
			return PushDelete
		}
		return DiscardAndPull

	case sd > 0:
		if cu == 0 {
			return None
		}
		if sd >= cu {
			return ApplyDelete
		}
		return Push
	}

	switch {
	case cu > su:
		return Push
	case su > cu:
		return Pull
	}
	return None
}
