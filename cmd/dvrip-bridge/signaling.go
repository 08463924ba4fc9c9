package main

import (
	"encoding/json"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/openipc/dvrip-go/internal/webrtcsink"
)

// signalingServer answers browser WebRTC offers with an answer over plain
// HTTP, one PeerConnection per request.
type signalingServer struct {
	bridge *bridge
	mux    *http.ServeMux
}

func newSignalingServer(b *bridge) *signalingServer {
	s := &signalingServer{bridge: b, mux: http.NewServeMux()}
	s.mux.HandleFunc("/offer", s.handleOffer)
	return s
}

func (s *signalingServer) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *signalingServer) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid offer: "+err.Error(), http.StatusBadRequest)
		return
	}

	pub, err := webrtcsink.NewPublisher()
	if err != nil {
		http.Error(w, "create publisher: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := pub.SetRemoteOffer(offer); err != nil {
		pub.Close()
		http.Error(w, "set remote offer: "+err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := pub.CreateAnswer()
	if err != nil {
		pub.Close()
		http.Error(w, "create answer: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.bridge.addViewer(pub)
	pub.OnClose(func() { s.bridge.removeViewer(pub) })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}
