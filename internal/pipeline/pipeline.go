// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipeline provides a small composable-function abstraction used to
// chain multi-stage operations into a single callable unit with one
// success mode and one failure mode. Its caller in this module is
// nnti.Transport's connect pipeline (connect-start logging, then the dial
// with connect-done logging).
package pipeline

import "context"

// Func is a single operation that accepts an input and returns a result.
//
// Func instances compose via [Compose2], [Compose3], [Compose4] into
// pipelines where the output of one stage becomes the input of the next;
// if a stage errors, later stages do not run.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// Adapter wraps a function as a [Func] implementation.
type Adapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f Adapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}

// Unit is a type holding no value, used for stages that take no input.
type Unit struct{}

// Const returns a [Func] that always returns value, ignoring its input.
func Const[B any](value B) Func[Unit, B] {
	return constFunc[B]{value}
}

type constFunc[B any] struct{ value B }

func (c constFunc[B]) Call(ctx context.Context, _ Unit) (B, error) {
	return c.value, nil
}

// Compose2 chains two [Func] instances: the output of op1 feeds op2.
func Compose2[A, B, C any](op1 Func[A, B], op2 Func[B, C]) Func[A, C] {
	return compose2[A, B, C]{op1, op2}
}

type compose2[A, B, C any] struct {
	op1 Func[A, B]
	op2 Func[B, C]
}

func (c compose2[A, B, C]) Call(ctx context.Context, input A) (C, error) {
	mid, err := c.op1.Call(ctx, input)
	if err != nil {
		var zero C
		return zero, err
	}
	return c.op2.Call(ctx, mid)
}

// Compose3 chains three [Func] instances.
func Compose3[A, B, C, D any](op1 Func[A, B], op2 Func[B, C], op3 Func[C, D]) Func[A, D] {
	return Compose2(op1, Compose2(op2, op3))
}

// Compose4 chains four [Func] instances.
func Compose4[A, B, C, D, E any](op1 Func[A, B], op2 Func[B, C], op3 Func[C, D], op4 Func[D, E]) Func[A, E] {
	return Compose2(op1, Compose3(op2, op3, op4))
}
