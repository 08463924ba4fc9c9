// Package webrtcsink republishes a live DVRIP monitor stream as a WebRTC
// track so browsers can watch it without installing a DVRIP client.
package webrtcsink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	rtcmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/openipc/dvrip-go/internal/logging"
	dvripmedia "github.com/openipc/dvrip-go/internal/media"
)

var log = logging.L("webrtcsink")

// Publisher holds one browser's WebRTC peer connection and video track.
type Publisher struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
}

// NewPublisher builds a PeerConnection with a single H264 video track,
// ready to receive an SDP offer/answer exchange.
func NewPublisher() (*Publisher, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register h264 codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "dvrip",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("new video track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video track: %w", err)
	}

	p := &Publisher{pc: pc, track: track, sender: sender}
	go p.readRTCP()
	return p, nil
}

// readRTCP drains receiver feedback (PLI/FIR keyframe requests, REMB
// bandwidth estimates) so the sender's buffers don't back up. Keyframe
// requests aren't currently forwarded to the device; DVRIP streams are
// already I-frame-led at a fixed interval.
func (p *Publisher) readRTCP() {
	for {
		packets, _, err := p.sender.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("rtcp reader stopped", "error", err)
			}
			return
		}
		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				log.Debug("received keyframe request")
			}
		}
	}
}

// SetRemoteOffer applies the viewer's SDP offer as the remote description.
func (p *Publisher) SetRemoteOffer(offer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(offer)
}

// CreateAnswer generates a local SDP answer and sets it as the local
// description, blocking until ICE gathering completes.
func (p *Publisher) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete
	return *p.pc.LocalDescription(), nil
}

// OnClose registers a callback fired once the peer connection reaches a
// terminal state (failed, closed, or disconnected), so callers can stop
// feeding it frames and release any shared resources.
func (p *Publisher) OnClose(fn func()) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info("connection state changed", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			fn()
		}
	})
}

// WriteFrame republishes one reassembled H264 access unit as an RTP
// sample. Frames of any other codec (including H265 and MPEG-4 video) are
// dropped.
func (p *Publisher) WriteFrame(frame dvripmedia.Frame) error {
	if frame.Codec != dvripmedia.CodecH264 {
		return nil
	}
	fps := int(frame.FPS)
	if fps <= 0 {
		fps = 25
	}
	duration := time.Second / time.Duration(fps)
	return p.track.WriteSample(rtcmedia.Sample{Data: frame.Data, Duration: duration})
}

// Close tears down the peer connection.
func (p *Publisher) Close() error {
	return p.pc.Close()
}
