package main

import "log"

// TransmitController is the glue between the mixer's release and the
// radio's PTT discipline, spec.md §4.9: "PTT asserted just before
// playback begins, deasserted once playback completes." Grounded on the
// teacher's RotctlClient call sites around rotator moves (deleted
// rotctl.go), generalized to the assert/play/deassert sequence this
// engine needs instead.
type TransmitController struct {
	radio *RadioFSM
	sink  AudioSink
}

// NewTransmitController wires a radio FSM to a playback sink.
func NewTransmitController(radio *RadioFSM, sink AudioSink) *TransmitController {
	return &TransmitController{radio: radio, sink: sink}
}

// OnMixedAudioReady implements MixedAudioListener.
func (t *TransmitController) OnMixedAudioReady(out MixedSlotOutput) {
	if err := t.radio.SetPTT(true); err != nil {
		log.Printf("transmit controller: PTT assert failed for slot %s: %v", out.SlotID, err)
		return
	}

	done, err := t.sink.PlayAudio(out.PCM, out.SampleRate, nil)
	if err != nil {
		log.Printf("transmit controller: playback failed for slot %s: %v", out.SlotID, err)
		t.radio.SetPTT(false)
		return
	}

	go func() {
		<-done
		if err := t.radio.SetPTT(false); err != nil {
			log.Printf("transmit controller: PTT deassert failed for slot %s: %v", out.SlotID, err)
		}
	}()
}
