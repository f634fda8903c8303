package resume

// Plan is the byte range a session streams: from StartOffset up to
// ExpectedTotal on both source and destination.
type Plan struct {
	StartOffset   int64
	ExpectedTotal int64
}

// Remaining returns the number of bytes the copy must move.
func (p Plan) Remaining() int64 {
	return p.ExpectedTotal - p.StartOffset
}

// Resolve computes where a transfer resumes from the already probed sizes.
// It returns one of the terminal sentinels when no streaming must happen.
// An absent destination is never complete, even for an empty source, so
// the session still creates it.
//
// The bytes already at the destination are trusted to be an unmodified
// prefix of the source. Only their length is compared.
func Resolve(dir Direction, local, remote FileInfo) (Plan, error) {
	switch dir {
	case Download:
		if !remote.Exists {
			return Plan{}, ErrRemoteNotFound
		}
		if !remote.Regular {
			return Plan{}, ErrRemoteNotRegular
		}
		if local.Exists && !local.Regular {
			return Plan{}, ErrLocalNotRegular
		}
		localSize := sizeOf(local)
		if local.Exists && localSize >= remote.Size {
			return Plan{}, ErrAlreadyComplete
		}
		return Plan{StartOffset: localSize, ExpectedTotal: remote.Size}, nil
	case Upload:
		if !local.Exists {
			return Plan{}, ErrLocalNotFound
		}
		if !local.Regular {
			return Plan{}, ErrLocalNotRegular
		}
		if remote.Exists && !remote.Regular {
			return Plan{}, ErrRemoteNotRegular
		}
		remoteSize := sizeOf(remote)
		if remote.Exists && remoteSize >= local.Size {
			return Plan{}, ErrAlreadyComplete
		}
		return Plan{StartOffset: remoteSize, ExpectedTotal: local.Size}, nil
	default:
		panic("resume: unknown direction " + dir.String())
	}
}

func sizeOf(fi FileInfo) int64 {
	if !fi.Exists || fi.Size < 0 {
		return 0
	}
	return fi.Size
}
