package modelview

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/force-h2020/wfmanager/verifier"
)

// Annotate writes the validation state of every node under root. Each node
// gets its children's error text followed by its own collapsed messages.
// Issues whose subject has no node under root are reported on root with
// their global message.
func Annotate(root Node, issues []verifier.Issue) {
	mirrored := make(map[any]bool)
	Walk(root, func(n Node) bool {
		mirrored[n.Model()] = true
		return true
	})

	bySubject := make(map[any][]string)
	for _, issue := range issues {
		subject, msg := issue.Subject, issue.Message
		if !mirrored[subject] {
			subject, msg = root.Model(), issue.GlobalMessage
		}
		bySubject[subject] = append(bySubject[subject], msg)
	}
	annotate(root, bySubject)
}

func annotate(n Node, bySubject map[any][]string) string {
	var lines []string
	for _, child := range n.Children() {
		if text := annotate(child, bySubject); text != "" {
			lines = append(lines, text)
		}
	}
	own := CollapseMessages(bySubject[n.Model()])
	lines = append(lines, own...)

	full := strings.Join(lines, "\n")
	n.setStatus(own, full)
	return full
}

var firstInt = regexp.MustCompile(`\d+`)

type indexed struct {
	index    int
	message  string
	start    int
	end      int
	position int
}

// CollapseMessages merges messages that differ only in their first integer
// when those integers form a run, so "Input slot 1 is unbound" through
// "Input slot 3 is unbound" become "Input slot 1-3 is unbound". Messages
// without an integer are kept as they are. Groups are emitted in order of
// first appearance.
func CollapseMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	type entry struct {
		key     string
		literal string
	}
	var order []entry
	groups := make(map[string][]indexed)
	for _, msg := range messages {
		loc := firstInt.FindStringIndex(msg)
		var n int
		var err error
		if loc != nil {
			n, err = strconv.Atoi(msg[loc[0]:loc[1]])
		}
		if loc == nil || err != nil {
			order = append(order, entry{literal: msg})
			continue
		}
		key := msg[:loc[0]] + "\x00" + msg[loc[1]:]
		if _, ok := groups[key]; !ok {
			order = append(order, entry{key: key})
		}
		groups[key] = append(groups[key], indexed{
			index:    n,
			message:  msg,
			start:    loc[0],
			end:      loc[1],
			position: len(groups[key]),
		})
	}

	out := make([]string, 0, len(order))
	for _, e := range order {
		if e.key == "" {
			out = append(out, e.literal)
			continue
		}
		out = append(out, runs(groups[e.key])...)
	}
	return out
}

// runs splits a group into runs of constant position minus index and formats
// each run as a range.
func runs(group []indexed) []string {
	var out []string
	first := 0
	for i := 1; i <= len(group); i++ {
		if i < len(group) && group[i].position-group[i].index == group[first].position-group[first].index {
			continue
		}
		head, tail := group[first], group[i-1]
		if head.index == tail.index {
			out = append(out, head.message)
		} else {
			out = append(out, head.message[:head.start]+
				strconv.Itoa(head.index)+"-"+strconv.Itoa(tail.index)+
				head.message[head.end:])
		}
		first = i
	}
	return out
}
