// Package tracer reconstructs human-readable command activity from
// decoded PSRP messages, grounded on SimpleCommandTracer in the original
// implementation's simple_command_tracer.py.
package tracer

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	internallog "github.com/smnsjas/go-psrptrace/internal/log"
	"github.com/smnsjas/go-psrptrace/psrp"
)

// LineFunc receives one reconstructed line of output (a command
// invocation, a host-call write, or pipeline output), already formatted
// for display.
type LineFunc func(line string)

// CommandTracer consumes decoded PSRP messages (psrp.DecodeMessage output)
// and emits a human-readable reconstruction: the commands a pipeline ran
// and the output/host calls it produced. It does not attempt to cover
// every PSRP construct — unsupported shapes are tagged and passed through
// rather than dropped silently, matching the original's "not every use
// case" scope note.
//
// CommandTracer is not internally locked: like psrp.Defragmenter and
// wsman.Dispatcher, it relies on its caller to serialize calls. In
// internal/pipeline it runs inside the PSRP defragmenter's completion
// callback, under the active ingress component's mutex.
type CommandTracer struct {
	logger *slog.Logger
	output LineFunc

	// promptIncoming is set when a CREATE_PIPELINE command named "prompt"
	// is seen: the *next* PIPELINE_OUTPUT is treated as the prompt string
	// value, not a generic output object. The flag is not keyed by
	// pipeline id, so that next message may come from any pipeline.
	promptIncoming bool
}

// New creates a CommandTracer that calls output for each reconstructed
// line.
func New(logger *slog.Logger, output LineFunc) *CommandTracer {
	if logger == nil {
		logger = slog.Default()
	}
	if output == nil {
		output = func(string) {}
	}
	return &CommandTracer{logger: logger.With("component", "tracer"), output: output}
}

// Message routes one decoded PSRP message to the appropriate handler by
// message type. Types outside CREATE_PIPELINE/PIPELINE_HOST_CALL/
// PIPELINE_OUTPUT carry no command-reconstruction content for a simple
// tracer and are ignored.
func (c *CommandTracer) Message(destination uint32, messageType psrp.MessageType, runspaceID, pipelineID uuid.UUID, text string) {
	switch messageType {
	case psrp.CreatePipeline:
		c.createPipeline(text, runspaceID, pipelineID, destination)
	case psrp.PipelineHostCall:
		c.pipelineHostCall(text, runspaceID, pipelineID, destination)
	case psrp.PipelineOutput:
		c.pipelineOutput(text, runspaceID, pipelineID, destination)
	}
}

func (c *CommandTracer) createPipeline(data string, rpid, pipelineID uuid.UUID, destination uint32) {
	if data == "" {
		c.logger.Warn("empty message data in CREATE_PIPELINE message",
			"runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination)
		return
	}
	doc, err := parseElement(data)
	if err != nil {
		c.logger.Error("failed to parse CREATE_PIPELINE CLIXML", "error", err)
		return
	}
	lst := doc.path(
		[3]string{"MS", "", ""},
		[3]string{"Obj", "N", "PowerShell"},
		[3]string{"MS", "", ""},
		[3]string{"Obj", "N", "Cmds"},
		[3]string{"LST", "", ""},
	)
	if lst == nil {
		return
	}

	var parsedCmds []string
	for i := range lst.Nodes {
		cmdObj := &lst.Nodes[i]
		ms := cmdObj.child("MS", "", "")
		if ms == nil {
			continue
		}
		cmdElem := ms.child("S", "N", "Cmd")
		if cmdElem == nil || cmdElem.Content == "" {
			continue
		}
		cmd := psrp.DeserializeString(cmdElem.Content, false)
		if cmd == "prompt" {
			c.promptIncoming = true
			return
		}
		parts := []string{cmd}
		if args := ms.child("Obj", "N", "Args"); args != nil {
			if argsLst := args.child("LST", "", ""); argsLst != nil {
				parts = appendCmdArgs(argsLst, parts, c.logger)
			}
		}
		parsedCmds = append(parsedCmds, strings.Join(parts, " "))
	}

	fullCmd := strings.Join(parsedCmds, " | ")
	c.output(fullCmd)
	c.logger.Info("command", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination,
		"command", internallog.ScrubCommandText(fullCmd))
}

func appendCmdArgs(argsLst *node, parts []string, logger *slog.Logger) []string {
	for i := range argsLst.Nodes {
		argObj := &argsLst.Nodes[i]
		ms := argObj.child("MS", "", "")
		if ms == nil {
			continue
		}
		for j := range ms.Nodes {
			elem := &ms.Nodes[j]
			switch elem.XMLName.Local {
			case "Nil":
				// nothing to add
			case "S":
				if elem.Content == "" {
					continue
				}
				argStr := psrp.DeserializeString(elem.Content, false)
				if strings.Contains(strings.TrimSpace(argStr), " ") {
					parts = append(parts, `"`+argStr+`"`)
				} else {
					parts = append(parts, argStr)
				}
			case "Obj":
				if innerLst := elem.child("LST", "", ""); innerLst != nil {
					var values []string
					for k := range innerLst.Nodes {
						item := &innerLst.Nodes[k]
						if item.XMLName.Local == "S" && item.Content != "" {
							values = append(values, psrp.DeserializeString(item.Content, false))
						}
					}
					if len(values) > 0 {
						joined := strings.Join(values, ",")
						if strings.Contains(strings.TrimSpace(joined), " ") {
							parts = append(parts, `"`+joined+`"`)
						}
						parts = append(parts, joined)
					}
				}
			default:
				logger.Warn("unsupported arg type in CREATE_PIPELINE command", "tag", elem.XMLName.Local)
			}
		}
	}
	return parts
}

func (c *CommandTracer) pipelineHostCall(data string, rpid, pipelineID uuid.UUID, destination uint32) {
	if data == "" {
		c.logger.Warn("empty message data in PIPELINE_HOST_CALL message",
			"runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination)
		return
	}
	doc, err := parseElement(data)
	if err != nil {
		c.logger.Error("failed to parse PIPELINE_HOST_CALL CLIXML", "error", err)
		return
	}
	method := doc.path([3]string{"MS", "", ""}, [3]string{"Obj", "N", "mi"}, [3]string{"ToString", "", ""})
	if method == nil {
		c.logger.Error("could not find method identifier in PIPELINE_HOST_CALL",
			"runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination)
		return
	}

	// Remaining host-call methods are documented at [MS-PSRP] 2.2.3.17;
	// only the common console-write shapes are reconstructed here.
	switch method.Content {
	case "WriteLine2":
		c.writeLine2(doc, rpid, pipelineID, destination)
	case "Write2":
		c.writeWithColours(doc, rpid, pipelineID, destination, false, "Write2")
	case "WriteLine3":
		c.writeWithColours(doc, rpid, pipelineID, destination, true, "WriteLine3")
	case "SetShouldExit":
		// nothing to reconstruct
	default:
		line := fmt.Sprintf("[unsupported PIPELINE_HOST_CALL method: %s]", method.Content)
		c.output(line)
		c.logger.Warn("unsupported PIPELINE_HOST_CALL method", "method", method.Content,
			"runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination)
	}
}

func (c *CommandTracer) writeLine2(doc *node, rpid, pipelineID uuid.UUID, destination uint32) {
	lst := doc.path([3]string{"MS", "", ""}, [3]string{"Obj", "N", "mp"}, [3]string{"LST", "", ""})
	if lst == nil {
		c.logger.Debug("WriteLine2() called with no arguments", "runspace_id", rpid, "pipeline_id", pipelineID)
		return
	}
	for i := range lst.Nodes {
		output := deserializeElement(&lst.Nodes[i])
		if output == "" {
			continue
		}
		c.output(output)
		c.logger.Info("WriteLine2", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination,
			"output", output)
	}
}

func (c *CommandTracer) writeWithColours(doc *node, rpid, pipelineID uuid.UUID, destination uint32, newline bool, methodName string) {
	lst := doc.path([3]string{"MS", "", ""}, [3]string{"Obj", "N", "mp"}, [3]string{"LST", "", ""})
	if lst == nil {
		c.logger.Debug(methodName+"() called with no arguments", "runspace_id", rpid, "pipeline_id", pipelineID)
		return
	}
	if len(lst.Nodes) < 3 {
		c.logger.Error(methodName+"() called with unexpected argument count",
			"expected", 3, "got", len(lst.Nodes), "runspace_id", rpid, "pipeline_id", pipelineID)
		return
	}
	// Args 0/1 are background/foreground colour, not reconstructed here.
	output := deserializeElement(&lst.Nodes[2])
	if output == "" {
		return
	}
	c.output(output)
	c.logger.Info(methodName, "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination, "output", output)
}

func (c *CommandTracer) pipelineOutput(data string, rpid, pipelineID uuid.UUID, destination uint32) {
	if data == "" {
		c.logger.Debug("empty message data in PIPELINE_OUTPUT message",
			"runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination)
		return
	}
	doc, err := parseElement(data)
	if err != nil {
		c.logger.Error("failed to parse PIPELINE_OUTPUT CLIXML", "error", err)
		return
	}

	if c.promptIncoming {
		c.promptIncoming = false
		if doc.XMLName.Local != "S" {
			c.output("[unsupported type received for prompt]")
			c.logger.Warn("unsupported type received for prompt", "tag", doc.XMLName.Local)
			return
		}
		prompt := psrp.DeserializeString(doc.Content, true)
		c.output(prompt)
		c.logger.Info("prompt", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination, "prompt", prompt)
		return
	}

	if tn := doc.child("TN", "", ""); tn != nil {
		if len(tn.Nodes) > 0 {
			switch tn.Nodes[0].Content {
			case "Selected.Microsoft.PowerShell.Commands.GenericMeasureInfo",
				"Selected.System.Management.Automation.CmdletInfo":
				// not relevant to a simple command trace
			case "Selected.System.Management.ManagementObject":
				c.outputManagementObject(doc, rpid, pipelineID, destination)
			default:
				c.output("[unsupported type received]")
				c.logger.Warn("unsupported type in PIPELINE_OUTPUT", "type_name", tn.Nodes[0].Content)
			}
		}
		return
	}

	output := deserializeElement(doc)
	if output != "" {
		c.output(output)
		c.logger.Info("output", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination,
			"tag", doc.XMLName.Local, "output", output)
	}
}

func (c *CommandTracer) outputManagementObject(doc *node, rpid, pipelineID uuid.UUID, destination uint32) {
	ms := doc.child("MS", "", "")
	if ms == nil {
		return
	}
	for i := range ms.Nodes {
		item := &ms.Nodes[i]
		if item.XMLName.Local != "S" {
			c.output("[unsupported type received]")
			c.logger.Warn("unsupported type in management-object output", "tag", item.XMLName.Local)
			continue
		}
		value := item.Content
		if propName, ok := item.attr("N"); ok {
			propName = psrp.DeserializeString(propName, false)
			c.output(propName + ": " + value)
			c.logger.Info("output", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination,
				"property", propName, "value", value)
		} else {
			c.output(value)
			c.logger.Info("output", "runspace_id", rpid, "pipeline_id", pipelineID, "destination", destination, "value", value)
		}
	}
}

// deserializeElement renders a single primitive CLIXML element ([MS-PSRP]
// 2.2.5.1) as display text. Types not in this list fall back to a tagged
// raw rendering rather than being dropped.
func deserializeElement(n *node) string {
	switch n.XMLName.Local {
	case "Nil":
		return ""
	case "S", "SBK", "Version", "URI":
		return psrp.DeserializeString(n.Content, false)
	case "XD":
		return psrp.DeserializeString(n.Content, true)
	case "GUID":
		return "{" + n.Content + "}"
	case "SecureString":
		return "[SecureString]" + n.Content
	case "D", "Dd", "Sg", "I64", "U64", "I32", "U32", "I16", "U16", "DT", "B":
		return n.Content
	case "C":
		return "[char_code]" + n.Content
	case "BA":
		if n.Content == "" {
			return "b''"
		}
		raw, err := base64.StdEncoding.DecodeString(n.Content)
		if err != nil {
			return "b''"
		}
		return fmt.Sprintf("%v", raw)
	case "SB":
		return "[signed_byte]" + n.Content
	case "By":
		return "[unsigned_byte]" + n.Content
	default:
		return fmt.Sprintf("[unsupported-%s-type]%s", n.XMLName.Local, n.Content)
	}
}
