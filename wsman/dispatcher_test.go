package wsman

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"testing"

	"github.com/smnsjas/go-psrptrace/psrp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFragment builds a 21-byte-header PSRP fragment (object_id(8) |
// fragment_id(8) | flags(1) | length(4), all big-endian, per
// psrp.ParseFragments), mirroring psrp/defrag_test.go's private helper of
// the same name — that one lives in package psrp and isn't visible here.
func encodeFragment(objectID, fragmentID int64, start, end bool, payload []byte) []byte {
	const (
		startMask = 1
		endMask   = 2
	)
	var flags byte
	if start {
		flags |= startMask
	}
	if end {
		flags |= endMask
	}
	header := make([]byte, psrp.FragmentHeaderLen)
	binary.BigEndian.PutUint64(header[0:8], uint64(objectID))
	binary.BigEndian.PutUint64(header[8:16], uint64(fragmentID))
	header[16] = flags
	binary.BigEndian.PutUint32(header[17:21], uint32(len(payload)))
	return append(header, payload...)
}

func envelopeXML(action, messageID, relatesTo, body string) string {
	return fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Header>
    <a:Action>%s</a:Action>
    <a:MessageID>%s</a:MessageID>
    <a:RelatesTo>%s</a:RelatesTo>
    %s
  </s:Header>
  <s:Body>%s</s:Body>
</s:Envelope>`, action, messageID, relatesTo, "", body)
}

func shellSelectorHeader(shellID string) string {
	return fmt.Sprintf(`<w:SelectorSet><w:Selector Name="ShellId">%s</w:Selector></w:SelectorSet>`, shellID)
}

// S6 — Command lifecycle: Create -> CreateResponse promotes the shell,
// Command -> CommandResponse binds a CommandId, Receive -> ReceiveResponse
// delivers fragment data and reports completion.
func TestDispatcher_CommandLifecycle(t *testing.T) {
	var got []struct {
		shellID string
		data    []byte
	}
	defrag := psrp.New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, struct {
			shellID string
			data    []byte
		}{shellID, data})
	})
	d := New(nil, defrag, nil)

	create := envelopeXML(ActionCreate, "msg-create", "", "")
	d.HandleSOAP("act1", 1, 1, create)
	assert.True(t, defrag.HasPendingShell("msg-create"))

	createResp := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Header><a:Action>%s</a:Action><a:RelatesTo>msg-create</a:RelatesTo></s:Header>
  <s:Body><ResourceCreated><ReferenceParameters><w:SelectorSet><w:Selector Name="ShellId">S1</w:Selector></w:SelectorSet></ReferenceParameters></ResourceCreated></s:Body>
</s:Envelope>`, ActionCreateResponse)
	d.HandleSOAP("act1", 1, 1, createResp)
	require.True(t, defrag.HasShell("S1"))
	require.False(t, defrag.HasPendingShell("msg-create"))

	command := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Header><a:Action>%s</a:Action><a:MessageID>msg-cmd</a:MessageID>%s</s:Header>
  <s:Body></s:Body>
</s:Envelope>`, ActionCommand, shellSelectorHeader("S1"))
	d.HandleSOAP("act1", 1, 1, command)

	commandResp := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Header><a:Action>%s</a:Action><a:RelatesTo>msg-cmd</a:RelatesTo></s:Header>
  <s:Body><CommandResponse><CommandId>C1</CommandId></CommandResponse></s:Body>
</s:Envelope>`, ActionCommandResponse)
	d.HandleSOAP("act1", 1, 1, commandResp)
	require.Equal(t, "S1", d.commands["C1"])

	receive := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Header><a:Action>%s</a:Action><a:MessageID>msg-recv</a:MessageID>%s</s:Header>
  <s:Body></s:Body>
</s:Envelope>`, ActionReceive, shellSelectorHeader("S1"))
	d.HandleSOAP("act1", 1, 1, receive)

	payload := encodeFragment(1, 0, true, true, []byte("hi"))
	b64 := base64.StdEncoding.EncodeToString(payload)
	receiveResp := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Header><a:Action>%s</a:Action><a:RelatesTo>msg-recv</a:RelatesTo></s:Header>
  <s:Body><ReceiveResponse><Stream Name="stdout" CommandId="C1">%s</Stream><CommandState CommandId="C1" State="%s"></CommandState></ReceiveResponse></s:Body>
</s:Envelope>`, ActionReceiveResponse, b64, CommandStateDone)
	d.HandleSOAP("act1", 1, 1, receiveResp)

	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0].shellID)
	assert.Equal(t, []byte("hi"), got[0].data)
	_, stillTracked := d.commands["C1"]
	assert.False(t, stillTracked, "command should be untracked once reported Done")
}

func faultEnvelopeXML(subcode, reason string) string {
	return fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Header><a:Action>%s</a:Action></s:Header>
  <s:Body>
    <s:Fault>
      <s:Code><s:Value>s:Sender</s:Value><s:Subcode><s:Value>%s</s:Value></s:Subcode></s:Code>
      <s:Reason><s:Text>%s</s:Text></s:Reason>
    </s:Fault>
  </s:Body>
</s:Envelope>`, ActionFault, subcode, reason)
}

func TestDispatcher_FaultClassifiesShellNotFound(t *testing.T) {
	var logs bytes.Buffer
	defrag := psrp.New(nil, func(string, int64, []byte, string) {})
	d := New(slog.New(slog.NewTextHandler(&logs, nil)), defrag, nil)
	fault := faultEnvelopeXML("w:InvalidSelectors", "The shell was not found")
	assert.NotPanics(t, func() {
		d.HandleSOAP("act1", 1, 1, fault)
	})
	assert.Contains(t, logs.String(), "kind=shell_not_found")
}

func TestDispatcher_FaultClassifiesAccessDenied(t *testing.T) {
	var logs bytes.Buffer
	defrag := psrp.New(nil, func(string, int64, []byte, string) {})
	d := New(slog.New(slog.NewTextHandler(&logs, nil)), defrag, nil)
	fault := faultEnvelopeXML("w:AccessDenied", "Access is denied")
	assert.NotPanics(t, func() {
		d.HandleSOAP("act1", 1, 1, fault)
	})
	assert.Contains(t, logs.String(), "kind=access_denied")
}

func TestFault_IsAccessDeniedIsShellNotFoundIsTimeout(t *testing.T) {
	accessDenied := &Fault{Subcode: "w:AccessDenied"}
	assert.True(t, accessDenied.IsAccessDenied())
	assert.False(t, accessDenied.IsShellNotFound())
	assert.False(t, accessDenied.IsTimeout())

	notFound := &Fault{Reason: "the shell was not found"}
	assert.True(t, notFound.IsShellNotFound())

	timedOut := &Fault{Subcode: "w:TimedOut"}
	assert.True(t, timedOut.IsTimeout())

	winAccessDenied := &Fault{WSManCode: 5}
	assert.True(t, winAccessDenied.IsAccessDenied())
}

func TestCheckFault_ReturnsFaultAsErrorWhenPresent(t *testing.T) {
	data := []byte(faultEnvelopeXML("w:AccessDenied", "Access is denied"))
	err := CheckFault(data)
	require.Error(t, err)
	assert.True(t, IsFault(err))
}

func TestCheckFault_NilWhenNoFaultPresent(t *testing.T) {
	err := CheckFault([]byte(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body/></s:Envelope>`))
	assert.NoError(t, err)
}

func TestDispatcher_MalformedEnvelopeIsDiscardedNotPanicked(t *testing.T) {
	defrag := psrp.New(nil, func(string, int64, []byte, string) {})
	d := New(nil, defrag, nil)
	assert.NotPanics(t, func() {
		d.HandleSOAP("act1", 1, 1, "<not-xml")
	})
}

func TestDispatcher_CreateResponseWithoutTrackedCreateIsIgnored(t *testing.T) {
	defrag := psrp.New(nil, func(string, int64, []byte, string) {})
	d := New(nil, defrag, nil)
	createResp := fmt.Sprintf(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Header><a:Action>%s</a:Action><a:RelatesTo>unknown</a:RelatesTo></s:Header>
  <s:Body></s:Body>
</s:Envelope>`, ActionCreateResponse)
	assert.NotPanics(t, func() {
		d.HandleSOAP("act1", 1, 1, createResp)
	})
	assert.False(t, defrag.HasShell(""))
}
