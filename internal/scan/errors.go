package scan

// ErrKind classifies coordinator failures so the HTTP layer can map them.
type ErrKind int

const (
	// KindInternal covers staging, enqueue and other adapter failures.
	KindInternal ErrKind = iota
	// KindBadImage means the payload could not be decoded as an image.
	KindBadImage
	// KindTimeout means the wait budget ran out before a worker finished.
	KindTimeout
)

// Error is a coordinator failure carrying the client-facing message.
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Client-facing failure texts.
const (
	msgBadImage      = "Encountered an issue while attempting to process your image. Please validate its data type is correct."
	msgStageFailed   = "We could not store the data in our S3 bucket. Aborting process. Please try again later"
	msgEnqueueFailed = "We could not add the work to the queue. Aborting process. Please try again later"
	msgTimeout       = "We could not process your result in a timely manner. Please try again later."
)
