// Package diagram renders a machine definition as flowchart text.
package diagram

import (
	"fmt"
	"io"
	"strings"

	"github.com/stateforward/go-fsm/embedded"
)

type Direction string

const (
	TopDown   Direction = "TD"
	TopBottom Direction = "TB"
	BottomTop Direction = "BT"
	LeftRight Direction = "LR"
	RightLeft Direction = "RL"
)

func (direction Direction) valid() bool {
	switch direction {
	case TopDown, TopBottom, BottomTop, LeftRight, RightLeft:
		return true
	}
	return false
}

var replacer = strings.NewReplacer("-", "_", "/", "_", ".", "_", " ", "_", "$", "")

func id(name string) string {
	return replacer.Replace(name)
}

// Mermaid writes a Mermaid flowchart: an init([start]) node pointing at the
// initial state and one labelled arc per registered edge. The direction
// defaults to TopDown.
func Mermaid(writer io.Writer, model embedded.Model, maybeDirection ...Direction) error {
	direction := TopDown
	if len(maybeDirection) > 0 {
		direction = maybeDirection[0]
	}
	if !direction.valid() {
		return fmt.Errorf("mermaid: invalid direction %q", direction)
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "flowchart %s\n", direction)
	if initial := model.InitialState(); initial != "" {
		fmt.Fprintf(&builder, "init([start])-->%s\n", id(initial))
	}
	for _, edge := range model.Edges() {
		fmt.Fprintf(&builder, "%s-->|%s| %s\n", id(edge.Source), edge.Action, id(edge.Target))
	}
	_, err := io.WriteString(writer, builder.String())
	return err
}

// PlantUML writes a PlantUML state diagram of model.
func PlantUML(writer io.Writer, model embedded.Model) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", id(model.Id()))
	for _, state := range model.States() {
		fmt.Fprintf(&builder, "state %s\n", id(state))
	}
	if initial := model.InitialState(); initial != "" {
		fmt.Fprintf(&builder, "[*] --> %s\n", id(initial))
	}
	for _, edge := range model.Edges() {
		fmt.Fprintf(&builder, "%s --> %s : %s\n", id(edge.Source), id(edge.Target), edge.Action)
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
