package wsman

import "encoding/xml"

// envelope is the inbound SOAP envelope shape the dispatcher unmarshals a
// complete (already-defragmented) WS-Man document into. Only the elements
// named in spec §6's XPath table are modeled; everything else is ignored
// by encoding/xml.
type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Header  header   `xml:"Header"`
	Body    body     `xml:"Body"`
}

type header struct {
	Action      string    `xml:"Action"`
	MessageID   string    `xml:"MessageID"`
	RelatesTo   string    `xml:"RelatesTo"`
	To          string    `xml:"To"`
	ResourceURI string    `xml:"ResourceURI"`
	SelectorSet selectors `xml:"SelectorSet"`
}

type selectors struct {
	Selector []selector `xml:"Selector"`
}

type selector struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// ShellID returns the SelectorSet entry named "ShellId", or "" if absent.
func (s selectors) ShellID() string {
	for _, sel := range s.Selector {
		if sel.Name == "ShellId" {
			return sel.Value
		}
	}
	return ""
}

type body struct {
	Shell           *shellBody           `xml:"Shell"`
	ResourceCreated *resourceCreated     `xml:"ResourceCreated"`
	CommandLine     *commandLineBody     `xml:"CommandLine"`
	CommandResponse *commandResponseBody `xml:"CommandResponse"`
	Receive         *receiveBody         `xml:"Receive"`
	ReceiveResponse *receiveResponseBody `xml:"ReceiveResponse"`
}

type shellBody struct {
	CreationXML string `xml:"creationXml"`
}

type resourceCreated struct {
	Address            string `xml:"Address"`
	ReferenceParameters struct {
		ResourceURI string    `xml:"ResourceURI"`
		SelectorSet selectors `xml:"SelectorSet"`
	} `xml:"ReferenceParameters"`
}

type commandLineBody struct {
	Arguments string `xml:"Arguments"`
}

type commandResponseBody struct {
	CommandID string `xml:"CommandId"`
}

type receiveBody struct {
	DesiredStream []desiredStream `xml:"DesiredStream"`
}

type desiredStream struct {
	CommandID string `xml:"CommandId,attr"`
}

type receiveResponseBody struct {
	CommandState []commandState `xml:"CommandState"`
	Stream       []streamElem   `xml:"Stream"`
}

type commandState struct {
	CommandID string  `xml:"CommandId,attr"`
	State     string  `xml:"State,attr"`
	ExitCode  *string `xml:"ExitCode"`
}

type streamElem struct {
	Name      string `xml:"Name,attr"`
	CommandID string `xml:"CommandId,attr"`
	Data      string `xml:",chardata"`
}

// CommandStateDone is the State value reported when a command has
// finished executing.
const CommandStateDone = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Done"
