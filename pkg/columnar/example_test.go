package columnar_test

import (
	"fmt"

	"github.com/rawbytedev/reflexio"
	"github.com/rawbytedev/reflexio/pkg/columnar"
)

func ExampleRecordArray_Descr() {
	reg := reflexio.NewRegistry()
	vec, _ := reg.Define("Vec3",
		reflexio.ArrayField("xyz", 3, nil, ""),
		reflexio.BoolField("valid", true, ""),
	)
	arr, _ := columnar.ToArray([]*reflexio.Instance{vec.New(), vec.New()})
	fmt.Println(arr.Descr())
	fmt.Println(len(arr.Bytes()))
	// Output:
	// {'names':['xyz','valid'],'formats':[('<f4', (3,)),'|b1'],'offsets':[0,12],'itemsize':13}
	// 26
}
