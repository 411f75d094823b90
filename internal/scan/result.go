package scan

// Result is the recognition result stored in the database api under the
// payload fingerprint. ScanMachineGuid and IsUserScan are always derived
// from the posting worker's authenticated token, never from request bodies.
type Result struct {
	Key             string `json:"Key"`
	ScanResult      string `json:"ScanResult"`
	DataType        string `json:"DataType"`
	DataExtension   string `json:"DataExtension"`
	ScanMachineGUID string `json:"ScanMachineGuid"`
	IsUserScan      bool   `json:"IsUserScan"`
}

// Valid reports whether every required field is set. Stored objects failing
// this are treated as corrupt and removed on read.
func (r *Result) Valid() bool {
	return r.Key != "" &&
		r.ScanResult != "" &&
		r.DataType != "" &&
		r.DataExtension != "" &&
		r.ScanMachineGUID != ""
}

// Job is the queue message pointing a worker at a staged payload.
type Job struct {
	ImageHash     string `json:"ImageHash"`
	ScanURL       string `json:"ScanUrl"`
	DataType      string `json:"DataType"`
	DataExtension string `json:"DataExtension"`
}

// Valid reports whether every descriptor field is set.
func (j *Job) Valid() bool {
	return j.ImageHash != "" && j.ScanURL != "" && j.DataType != "" && j.DataExtension != ""
}
