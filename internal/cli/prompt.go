package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/roach88/tablehook/internal/recipe"
)

// ErrCancelled is returned when the operator aborts the recipe builder.
var ErrCancelled = errors.New("recipe creation cancelled")

// Prompter asks the operator for input.
//
// Implemented by promptuiPrompter (the create command) and linePrompter
// (the shell, and tests).
type Prompter interface {
	// Ask reads one line. validate, when non-nil, is applied until it passes.
	Ask(label string, validate func(string) error) (string, error)

	// Choose returns the index of the chosen item.
	Choose(label string, items []string) (int, error)

	// Confirm asks a yes/no question.
	Confirm(label string) (bool, error)
}

// BuildRecipe walks the operator through defining a recipe: name, trigger,
// the action chain with per-action filters, output chaining, the source
// table, trigger parameters and finally the recipe's own filters.
func BuildRecipe(p Prompter) (*recipe.Recipe, error) {
	name, err := p.Ask("Step 1: Enter a name for this recipe", validateName)
	if err != nil {
		return nil, err
	}
	r := &recipe.Recipe{Name: name}

	triggers := make([]string, len(recipe.TriggerKinds))
	for i, t := range recipe.TriggerKinds {
		triggers[i] = fmt.Sprintf("%s - %s", t.Kind, t.Description)
	}
	idx, err := p.Choose(name+" - Step 2: Choose a Trigger", triggers)
	if err != nil {
		return nil, err
	}
	r.Trigger.Kind = recipe.TriggerKinds[idx].Kind

	actions := make([]string, len(recipe.ActionKinds))
	for i, a := range recipe.ActionKinds {
		actions[i] = fmt.Sprintf("%s - %s", a.Kind, a.Description)
	}
	for {
		idx, err := p.Choose(name+" - Step 3: Choose an Action", actions)
		if err != nil {
			return nil, err
		}
		action := recipe.Action{Kind: recipe.ActionKinds[idx].Kind}
		if action.Kind == recipe.ActionSendWebhook {
			if action.WebhookURL, err = p.Ask("Enter the webhook URL", validateURL); err != nil {
				return nil, err
			}
		}
		if action.Filters, err = askFilters(p,
			fmt.Sprintf("Do you want to add a filter for action %s?", action.Kind),
			fmt.Sprintf("Do you want to add another filter for action %s?", action.Kind),
		); err != nil {
			return nil, err
		}
		r.Actions = append(r.Actions, action)

		more, err := p.Confirm("Do you want to add another action?")
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}

	for i := range r.Actions {
		a := &r.Actions[i]
		if a.OutputName, err = p.Ask(fmt.Sprintf("Enter an output name for action %s (press enter to skip)", a.Label(i)), nil); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		inputs, err := p.Ask(fmt.Sprintf("Outputs of previous actions to use as input for action %s, comma separated (press enter to skip)", a.Label(i)), nil)
		if err != nil {
			return nil, err
		}
		a.InputFrom = splitList(inputs)
	}

	if r.Source.BaseKey, err = p.Ask(name+" - Step 4: Enter the Airtable base key", validateRequired); err != nil {
		return nil, err
	}
	if r.Source.TableName, err = p.Ask(name+" - Step 5: Enter the Airtable table name", validateRequired); err != nil {
		return nil, err
	}
	if r.Source.APIKey, err = p.Ask(name+" - Step 6: Enter the Airtable API key", validateRequired); err != nil {
		return nil, err
	}

	if r.Trigger.Kind == recipe.TriggerFindRecord {
		if r.Trigger.FieldName, err = p.Ask(name+" - Step 7: Enter the field name to search in", validateRequired); err != nil {
			return nil, err
		}
		if r.Trigger.TextToFind, err = p.Ask(name+" - Step 8: Enter the text to find in the field", nil); err != nil {
			return nil, err
		}
	}

	if r.Filters, err = askFilters(p,
		name+" - Step 9: Do you want to add a filter?",
		"Do you want to add another filter?",
	); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func askFilters(p Prompter, first, again string) ([]recipe.FilterCondition, error) {
	var filters []recipe.FilterCondition
	label := first
	for {
		add, err := p.Confirm(label)
		if err != nil {
			return nil, err
		}
		if !add {
			return filters, nil
		}
		f, err := askFilter(p)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
		label = again
	}
}

func askFilter(p Prompter) (recipe.FilterCondition, error) {
	var f recipe.FilterCondition
	var err error
	if f.FieldName, err = p.Ask("Enter the field name to apply the filter on", validateRequired); err != nil {
		return f, err
	}
	ops := make([]string, len(recipe.Operators))
	for i, op := range recipe.Operators {
		ops[i] = string(op)
	}
	idx, err := p.Choose("Choose the operator", ops)
	if err != nil {
		return f, err
	}
	f.Operator = recipe.Operators[idx]
	if f.Value, err = p.Ask("Enter the value for the filter", nil); err != nil {
		return f, err
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateRequired(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("a value is required")
	}
	return nil
}

func validateName(s string) error {
	if err := validateRequired(s); err != nil {
		return err
	}
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return errors.New("the name must be usable as a file name")
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an absolute http or https URL")
	}
	return nil
}

// =============================================================================
// Line prompter
// =============================================================================

// linePrompter prompts with plain lines. The shell backs readLine with its
// readline instance so history and line editing keep working.
type linePrompter struct {
	readLine func(prompt string) (string, error)
	out      io.Writer
}

func (p *linePrompter) Ask(label string, validate func(string) error) (string, error) {
	for {
		line, err := p.readLine(label + ": ")
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if validate != nil {
			if err := validate(line); err != nil {
				fmt.Fprintf(p.out, "%v\n", err)
				continue
			}
		}
		return line, nil
	}
}

func (p *linePrompter) Choose(label string, items []string) (int, error) {
	fmt.Fprintf(p.out, "\n%s\n", label)
	fmt.Fprintln(p.out, strings.Repeat("-", len(label)))
	for i, item := range items {
		fmt.Fprintf(p.out, "%d: %s\n", i+1, item)
	}
	answer, err := p.Ask("Choose an option by entering the corresponding number", func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("please enter a valid number")
		}
		if n < 1 || n > len(items) {
			return errors.New("invalid choice, please choose a valid option")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(answer)
	return n - 1, nil
}

func (p *linePrompter) Confirm(label string) (bool, error) {
	answer, err := p.Ask(label+" (yes/no)", func(s string) error {
		switch strings.ToLower(s) {
		case "y", "yes", "n", "no":
			return nil
		}
		return errors.New("please answer yes or no")
	})
	if err != nil {
		return false, err
	}
	a := strings.ToLower(answer)
	return a == "y" || a == "yes", nil
}

// =============================================================================
// promptui prompter
// =============================================================================

type promptuiPrompter struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func newPromptuiPrompter(in io.Reader, out io.Writer) *promptuiPrompter {
	return &promptuiPrompter{in: io.NopCloser(in), out: nopWriteCloser{out}}
}

func (p *promptuiPrompter) Ask(label string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:  label,
		Stdin:  p.in,
		Stdout: p.out,
	}
	if validate != nil {
		prompt.Validate = promptui.ValidateFunc(validate)
	}
	answer, err := prompt.Run()
	if err != nil {
		return "", promptError(err)
	}
	return strings.TrimSpace(answer), nil
}

func (p *promptuiPrompter) Choose(label string, items []string) (int, error) {
	sel := promptui.Select{
		Label:  label,
		Items:  items,
		Size:   len(items),
		Stdin:  p.in,
		Stdout: p.out,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return 0, promptError(err)
	}
	return idx, nil
}

func (p *promptuiPrompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.in,
		Stdout:    p.out,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, promptError(err)
	}
	return true, nil
}

func promptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrCancelled
	}
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
