// Package workflow models a generation job as a directed graph of typed
// operation nodes and provides the operations that prepare a stored template
// for submission.
//
// # Model
//
// A Graph maps node ids to Nodes. Every Node has an operation type, an
// optional title used to tell apart nodes of the same type (for example the
// positive and negative text encoders) and a set of named inputs. An input is
// either a literal, held as a cty.Value, or a Reference to an output slot of
// another node in the same graph.
//
// Operation types are classified into a closed set of Kinds. Each Kind knows
// which of its inputs are required; nodes of unknown types are passed through
// untouched and have no required inputs.
//
// # Lifecycle
//
//  1. Loader.Load reads a template from the template directory.
//  2. The caller clones it with Graph.Clone for every job it submits.
//  3. SetText, SetSeed, SetDimensions and WireReferenceImages parameterize the clone.
//  4. DeleteNodes removes nodes and rewires or prunes everything that depended on them.
//
// Templates are never mutated after loading, so one loaded Graph can be shared
// by concurrent callers as long as each of them works on its own clone.
package workflow
