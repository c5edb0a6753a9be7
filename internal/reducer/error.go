package reducer

import "errors"

var ErrDisagree = errors.New("cached copies of the order disagree")
