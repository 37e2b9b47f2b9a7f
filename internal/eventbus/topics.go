package eventbus

// Event types published by animatron components.
const (
	TypeCueDispatched   = "cue.dispatched"
	TypeCueUnknown      = "cue.unknown"
	TypeTriggerRejected = "trigger.rejected"
	TypeClipStarted     = "motion.clip_started"
	TypeClipFinished    = "motion.clip_finished"
	TypeClipStopped     = "motion.clip_stopped"
	TypeSafetyClamped   = "motion.safety_clamped"
	TypeJobStarted      = "job.started"
	TypeJobCancelled    = "job.cancelled"
	TypeSlotDropped     = "scheduler.dropped"
	TypeEmit            = "choreo.emit"
	TypeLog             = "log"
	TypeConfigReload    = "config.reload"
	TypeLinkFrame       = "link.frame"
)
