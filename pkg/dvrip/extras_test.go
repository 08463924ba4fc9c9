package dvrip

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/openipc/dvrip-go/internal/framer"
	"github.com/openipc/dvrip-go/internal/rpc"
	"github.com/openipc/dvrip-go/internal/session"
	"github.com/openipc/dvrip-go/internal/transport"
)

// fakeDevice accepts one connection and lets the test script canned framed
// replies in response to whatever the client sends.
type fakeDevice struct {
	t    *testing.T
	ln   net.Listener
	conn net.Conn
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return &fakeDevice{t: t, ln: ln}
}

func (f *fakeDevice) accept() {
	conn, err := f.ln.Accept()
	if err != nil {
		f.t.Fatal(err)
	}
	f.conn = conn
}

func (f *fakeDevice) addr() string { return f.ln.Addr().String() }

func (f *fakeDevice) readFrame() (framer.Header, map[string]any) {
	hdrBuf := make([]byte, framer.HeaderSize)
	if _, err := readFull(f.conn, hdrBuf); err != nil {
		f.t.Fatal(err)
	}
	hdr, err := framer.Unpack(hdrBuf)
	if err != nil {
		f.t.Fatal(err)
	}
	payload := make([]byte, hdr.PayloadLength)
	if hdr.PayloadLength > 0 {
		if _, err := readFull(f.conn, payload); err != nil {
			f.t.Fatal(err)
		}
	}
	var body map[string]any
	if err := json.Unmarshal(framer.StripTrailer(payload), &body); err != nil {
		f.t.Fatal(err)
	}
	return hdr, body
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (f *fakeDevice) reply(hdr framer.Header, body map[string]any) {
	data, _ := json.Marshal(body)
	data = append(data, framer.JSONTrailer...)
	wire := framer.Pack(hdr.MessageID, hdr.SessionID, hdr.Sequence, 0, data)
	if _, err := f.conn.Write(wire); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fakeDevice) close() {
	if f.conn != nil {
		f.conn.Close()
	}
	f.ln.Close()
}

// newTestClient dials dev and wires up a Client already past login, so
// extras.go calls can issue requests directly.
func newTestClient(t *testing.T, dev *fakeDevice, password string) *Client {
	t.Helper()
	conn, err := transport.Dial(transport.TCP, dev.addr(), time.Second, "")
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(nil, nil)
	sess.ApplyLogin("0x0000BEEF", 0, "HVR")
	return &Client{cfg: Config{Password: password}, conn: conn, sess: sess, rpc: rpc.New(conn, sess)}
}

func TestListUsersUnwrapsUsersField(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	go dev.accept()
	c := newTestClient(t, dev, "pw")
	defer c.conn.Close()

	done := make(chan struct{})
	var users []User
	var callErr error
	go func() {
		defer close(done)
		users, callErr = c.ListUsers()
	}()

	for dev.conn == nil {
		time.Sleep(time.Millisecond)
	}
	hdr, body := dev.readFrame()
	if body["Name"] != "Users" {
		t.Fatalf("request Name = %v, want Users", body["Name"])
	}
	if _, fabricated := body["OPUserManager"]; fabricated {
		t.Fatal("request should not carry a fabricated OPUserManager key")
	}

	dev.reply(hdr, map[string]any{
		"Name": "Users",
		"Ret":  100,
		"Users": []any{
			map[string]any{
				"Name":          "admin",
				"Group":         "admin",
				"Memo":          "built-in",
				"AuthorityList": []any{"All"},
				"Reserved":      true,
				"Sharable":      false,
			},
		},
	})
	<-done

	if callErr != nil {
		t.Fatalf("ListUsers: %v", callErr)
	}
	if len(users) != 1 || users[0].Name != "admin" || users[0].Comment != "built-in" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestAddUserEnvelopeMatchesUserCommand(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	go dev.accept()
	c := newTestClient(t, dev, "pw")
	defer c.conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.AddUser("alice", "secret", "user", "demo account", []string{"Monitor"}, true)
	}()

	for dev.conn == nil {
		time.Sleep(time.Millisecond)
	}
	hdr, body := dev.readFrame()
	if body["Name"] != "User" {
		t.Fatalf("request Name = %v, want User", body["Name"])
	}
	user, ok := body["User"].(map[string]any)
	if !ok {
		t.Fatalf("request missing User object: %+v", body)
	}
	if user["Name"] != "alice" || user["Group"] != "user" || user["Memo"] != "demo account" {
		t.Fatalf("unexpected User body: %+v", user)
	}

	dev.reply(hdr, map[string]any{"Name": "User", "Ret": 100})
	<-done
}

func TestDelUserSendsBareNameEnvelope(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	go dev.accept()
	c := newTestClient(t, dev, "pw")
	defer c.conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.DelUser("alice")
	}()

	for dev.conn == nil {
		time.Sleep(time.Millisecond)
	}
	hdr, body := dev.readFrame()
	if body["Name"] != "alice" {
		t.Fatalf("request Name = %v, want the target account name alice", body["Name"])
	}
	if _, hasAction := body["Action"]; hasAction {
		t.Fatal("DelUser request should not carry an Action field")
	}

	dev.reply(hdr, map[string]any{"Name": "", "Ret": 100})
	<-done
}

func TestChangePasswordEnvelope(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	go dev.accept()
	c := newTestClient(t, dev, "currentpw")
	defer c.conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.ChangePassword("alice", "newpw", "")
	}()

	for dev.conn == nil {
		time.Sleep(time.Millisecond)
	}
	hdr, body := dev.readFrame()
	if body["UserName"] != "alice" {
		t.Fatalf("UserName = %v, want alice", body["UserName"])
	}
	if body["EncryptType"] != "MD5" {
		t.Fatalf("EncryptType = %v, want MD5", body["EncryptType"])
	}
	wantNew := session.SofiaHash("newpw")
	if body["NewPassWord"] != wantNew {
		t.Fatalf("NewPassWord = %v, want %v", body["NewPassWord"], wantNew)
	}
	wantOld := session.SofiaHash("currentpw")
	if body["PassWord"] != wantOld {
		t.Fatalf("PassWord = %v, want %v (hash of the Client's own password)", body["PassWord"], wantOld)
	}

	dev.reply(hdr, map[string]any{"Name": "", "Ret": 100})
	<-done
}

func TestPTZCommandPresetSentinels(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.close()

	go dev.accept()
	c := newTestClient(t, dev, "pw")
	defer c.conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.PTZMove(0, PTZUp, 5)
	}()

	for dev.conn == nil {
		time.Sleep(time.Millisecond)
	}
	hdr, body := dev.readFrame()
	cmd, ok := body["OPPTZControl"].(map[string]any)
	if !ok {
		t.Fatalf("missing OPPTZControl object in %+v", body)
	}
	param, ok := cmd["Parameter"].(map[string]any)
	if !ok {
		t.Fatalf("missing Parameter in %+v", cmd)
	}
	if _, hasStatus := body["Status"]; hasStatus {
		t.Fatal("ptz request should not carry a top-level Status field")
	}
	if param["Preset"] != float64(65535) {
		t.Fatalf("Preset on start = %v, want 65535", param["Preset"])
	}
	if _, hasSpeed := param["Speed"]; hasSpeed {
		t.Fatal("Parameter should use Step, not Speed")
	}

	dev.reply(hdr, map[string]any{"Name": "", "Ret": 100})
	<-done
}
