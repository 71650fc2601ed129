package media

import "fmt"

// Op enumerates every command this package can send to the bridge
type Op int

const (
	OpCreate Op = iota
	OpPlay
	OpStop
	OpSeekTo
	OpPause
	OpCurrentPosition
	OpStartRecord
	OpStopRecord
	OpPauseRecord
	OpResumeRecord
	OpRelease
	OpSetVolume
	OpSetRate
	OpCurrentAmplitude
	OpMessageChannel
)

var opMethods = [...]string{
	OpCreate:           "create",
	OpPlay:             "startPlayingAudio",
	OpStop:             "stopPlayingAudio",
	OpSeekTo:           "seekToAudio",
	OpPause:            "pausePlayingAudio",
	OpCurrentPosition:  "getCurrentPositionAudio",
	OpStartRecord:      "startRecordingAudio",
	OpStopRecord:       "stopRecordingAudio",
	OpPauseRecord:      "pauseRecordingAudio",
	OpResumeRecord:     "resumeRecordingAudio",
	OpRelease:          "release",
	OpSetVolume:        "setVolume",
	OpSetRate:          "setRate",
	OpCurrentAmplitude: "getCurrentAmplitudeAudio",
	OpMessageChannel:   "messageChannel",
}

// Method returns the native method name for the operation
func (o Op) Method() string {
	if o >= 0 && int(o) < len(opMethods) {
		return opMethods[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func (o Op) String() string {
	return o.Method()
}

// reportsToHandle tells whether a failed reply is also delivered to the
// handle's OnError callback. Play, volume and rate failures, and the
// query operations, only fail their Call.
func (o Op) reportsToHandle() bool {
	switch o {
	case OpCreate, OpStop, OpSeekTo, OpPause,
		OpStartRecord, OpStopRecord, OpPauseRecord, OpResumeRecord,
		OpRelease:
		return true
	}
	return false
}
