// Package events defines the typed speech pipeline event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - pipeline.*
//
// Semantics used across the package:
//
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current stream/turn phase.
//   - Started/Ended: lifecycle boundaries.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim full transcript snapshot.
//   - UserTranscriptFinal (user_input.transcript_final): terminal full
//     transcript for the utterance.
//   - UserNoSpeechCaptured (user_input.no_speech_captured): the session ended
//     without any usable speech; distinct from transport failure.
//
// assistant_response events
//
//   - AssistantResponseFinal (assistant_response.final): the assistant's reply
//     text; UsedFallback marks canned text produced after upstream exhaustion.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): the output device
//     began emitting the reply.
//   - AssistantPlaybackEnded (assistant_playback.ended): the reply drained or
//     was displaced by a newer one.
//
// pipeline events
//
//   - PipelineFailed (pipeline.failed): a stage failed terminally; carries the
//     classified error.
package events
