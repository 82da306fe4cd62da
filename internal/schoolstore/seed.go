package schoolstore

import "rollcall/internal/attendance"

type demoClass struct {
	name     string
	students []attendance.Student
}

var demo = struct {
	teacher attendance.Teacher
	classes []demoClass
}{
	teacher: attendance.Teacher{Username: "demo.teacher", Name: "Demo Teacher", Email: "demo.teacher@school.test"},
	classes: []demoClass{
		{
			name: "1A",
			students: []attendance.Student{
				{Name: "Ada Lovelace", Email: "ada@school.test"},
				{Name: "Alan Turing", Email: "alan@school.test"},
				{Name: "Grace Hopper", Email: "grace@school.test"},
			},
		},
		{
			name: "1B",
			students: []attendance.Student{
				{Name: "Edsger Dijkstra", Email: "edsger@school.test"},
				{Name: "Barbara Liskov", Email: "barbara@school.test"},
			},
		},
		// a class nobody is enrolled in yet
		{name: "2A"},
	},
}
