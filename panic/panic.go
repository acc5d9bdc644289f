package panic

// Do runs f and routes any panic to handle instead of unwinding further.
// Worker loops wrap each unit of work in Do so one bad image cannot take
// down the whole scan.
func Do(f func(), handle func(r interface{})) {
	defer func() {
		if r := recover(); r != nil {
			handle(r)
		}
	}()
	f()
}
