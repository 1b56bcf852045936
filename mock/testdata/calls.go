package calls

func example() {
	repo.Returns(user).Get(42, mock.Any[string]())
	repo.Returns(user).Get(
		mock.Any[int](),
		"x",
	)
	fn.Returns(1)(2, mock.Eq(3))
	repo.Returns(nil).Find("a", other.Get(1), mock.Any[int]())
	repo.Returns(nil).Find(ids...)
	repo.AssertInvoked().Get(positive(), "y")
}

func adapter() {
	prices.Returns(10).Lookup("apple", mock.Any[string]())
}
