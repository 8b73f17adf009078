/*
Package template renders prompt text from workflow state.

# Overview

Node bodies that call a completion provider usually build their prompt from
state fields. template expands ${field} placeholders against a
taskgraph.State (or any map):

	prompt := template.Render("Answer the question: ${query}", state)

Dotted names walk Map fields:

	template.Render("Intent: ${classification.intent}", state)

List values, including APPEND fields, are joined with a newline; the
separator and the number of trailing items are configurable:

	exp := template.NewExpander(
	    template.WithListSeparator("\n---\n"),
	    template.WithMaxItems(5),
	)
	text, err := exp.Render("Findings:\n${findings}", state)

# Missing Values

By default a placeholder with no value is left in place. WithMissingAction
selects MissingEmpty or MissingError instead; the latter reports every
missing name in an *UndefinedVariableError.

# Escaping

"$${name}" renders as the literal text "${name}".

# Thread Safety

An Expander is immutable after construction and safe for concurrent use.
*/
package template
