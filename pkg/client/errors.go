package client

// The client reports three kinds of failure, each carrying a human-readable
// Name for observability and, when available, the underlying cause for
// errors.Is / errors.As inspection. All failures are terminal for the current
// call: the client performs no retries and leaves no partial state behind.

// VerificationError is any failure from the verifier: certificate
// acquisition, cryptographic check, malformed signature metadata. The
// candidate snapshot is discarded and storage is left untouched.
type VerificationError struct {
	Name  string
	Cause error
}

func (e *VerificationError) Error() string { return e.Name }

func (e *VerificationError) Unwrap() error { return e.Cause }

// StorageError is a storage backend read/write failure, or a serialisation
// failure of a verified snapshot. Decode failures while loading are not
// reported; they are treated as "no local snapshot".
type StorageError struct {
	Name  string
	Cause error
}

func (e *StorageError) Error() string { return e.Name }

func (e *StorageError) Unwrap() error { return e.Cause }

// Error is any transport/server failure and any operational failure that is
// neither verification nor storage, e.g. an unknown collection.
type Error struct {
	Name  string
	Cause error
}

func (e *Error) Error() string { return e.Name }

func (e *Error) Unwrap() error { return e.Cause }
